package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-pipeline/internal/config"
	httphandler "github.com/kjstillabower/weather-pipeline/internal/http"
	"github.com/kjstillabower/weather-pipeline/internal/lifecycle"
	"github.com/kjstillabower/weather-pipeline/internal/observability"
)

func main() {
	logger, err := observability.NewLogger("weather-pipeline")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// run serves every configured role until ctx is done or a listener fails,
// then shuts all of them down together.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting", zap.String("env", cfg.Env), zap.Strings("roles", cfg.Roles()))

	var b *backends
	if needsBackends(cfg) {
		var err error
		b, err = openBackends(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer b.close(logger)
	}

	inflight := &httphandler.InFlightTracker{}
	roles := make([]*role, 0, len(cfg.Roles()))
	for _, name := range cfg.Roles() {
		r, err := newRole(name, cfg, b, logger)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		roles = append(roles, r)
	}

	g, gctx := errgroup.WithContext(ctx)
	servers := make([]*http.Server, 0, len(roles))
	for _, r := range roles {
		srv := r.server(cfg, inflight, logger)
		servers = append(servers, srv)
		name := r.name
		g.Go(func() error {
			logger.Info("server starting", zap.String("service", serviceNames[name]), zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
		if r.fetcher != nil && len(cfg.WarmZipcodes) > 0 {
			f := r.fetcher
			g.Go(func() error {
				return startWarming(gctx, cfg, f, logger)
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdown(cfg, servers, inflight, logger)
		return nil
	})
	return g.Wait()
}

func shutdown(cfg *config.Config, servers []*http.Server, inflight *httphandler.InFlightTracker, logger *zap.Logger) {
	lifecycle.BeginShutdown()
	logger.Info("graceful shutdown triggered")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	var g errgroup.Group
	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown", zap.String("addr", srv.Addr), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	remaining := inflight.Count()
	logger.Info("waiting for in-flight requests", zap.Int64("count", remaining))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inflight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inflight.Count()))
	}

	logger.Info("drained", zap.Duration("elapsed", lifecycle.DrainingFor()))
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
}
