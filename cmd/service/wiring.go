package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-pipeline/internal/cache"
	"github.com/kjstillabower/weather-pipeline/internal/circuitbreaker"
	"github.com/kjstillabower/weather-pipeline/internal/client"
	"github.com/kjstillabower/weather-pipeline/internal/config"
	httphandler "github.com/kjstillabower/weather-pipeline/internal/http"
	"github.com/kjstillabower/weather-pipeline/internal/observability"
	"github.com/kjstillabower/weather-pipeline/internal/orchestrator"
	"github.com/kjstillabower/weather-pipeline/internal/service"
	"github.com/kjstillabower/weather-pipeline/internal/store"
	"github.com/kjstillabower/weather-pipeline/internal/store/memory"
	"github.com/kjstillabower/weather-pipeline/internal/store/sqlite"
)

// serviceNames label each role in logs, metrics and /health.
var serviceNames = map[string]string{
	config.RoleValidator:    "zipcode-service",
	config.RoleFetcher:      "weather-service",
	config.RoleFormatter:    "result-service",
	config.RoleOrchestrator: "api-server",
}

// backends are the shared handles every stage role in this process uses.
type backends struct {
	cache cache.Cache
	store store.Store
}

// needsBackends reports whether any role in this process touches the cache or store.
func needsBackends(cfg *config.Config) bool {
	return cfg.Runs(config.RoleValidator) || cfg.Runs(config.RoleFetcher) || cfg.Runs(config.RoleFormatter)
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	c, err := newCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s, err := newStore(ctx, cfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return &backends{cache: c, store: s}, nil
}

func (b *backends) close(logger *zap.Logger) {
	if b == nil {
		return
	}
	if err := b.cache.Close(); err != nil {
		logger.Error("cache close", zap.Error(err))
	}
	if err := b.store.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
}

func newCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, nil
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{URL: cfg.RedisURL, PoolSize: cfg.RedisPoolSize})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		logger.Info("cache backend: redis")
		return rc, nil
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil
	}
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite directory: %w", err)
			}
		}
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		logger.Info("store backend: sqlite", zap.String("path", cfg.SQLitePath))
		return store.Instrumented(s), nil
	default:
		logger.Info("store backend: in_memory")
		return store.Instrumented(memory.New()), nil
	}
}

func newProvider(cfg *config.Config, logger *zap.Logger) (*client.OpenWeatherClient, error) {
	weatherClient, err := client.NewOpenWeatherClient(client.Options{
		APIKey:  cfg.WeatherAPIKey,
		BaseURL: cfg.WeatherAPIURL,
		Timeout: cfg.WeatherAPITimeout,
		Country: cfg.WeatherCountry,
		Units:   cfg.WeatherUnits,
	})
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	if !weatherClient.Configured() {
		logger.Warn("weather API key not configured; fetch requests will fail until OPENWEATHER_API_KEY is set")
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), int(to))
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	return weatherClient, nil
}

// role is one listener's dependencies, ready to serve.
type role struct {
	name    string
	deps    httphandler.Dependencies
	health  *httphandler.HealthConfig
	limiter *rate.Limiter
	fetcher *service.Fetcher
}

// newRole builds the handler dependencies for name. b is nil for orchestrator-only processes.
func newRole(name string, cfg *config.Config, b *backends, logger *zap.Logger) (*role, error) {
	r := &role{
		name: name,
		health: &httphandler.HealthConfig{
			Service:          serviceNames[name],
			DegradedWindow:   cfg.DegradedWindow,
			DegradedErrorPct: cfg.DegradedErrorPct,
		},
	}
	if name != config.RoleOrchestrator {
		r.health.Checks = map[string]func(context.Context) error{
			"cache": b.cache.Ping,
			"store": b.store.Ping,
		}
	}

	switch name {
	case config.RoleValidator:
		r.deps.Validator = service.NewValidator(b.cache, b.store)
	case config.RoleFetcher:
		provider, err := newProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
		r.fetcher = service.NewFetcher(provider, b.cache, b.store, service.FetcherOptions{
			Coalesce:        cfg.CoalesceEnabled,
			CoalesceTimeout: cfg.CoalesceTimeout,
		})
		r.deps.Fetcher = r.fetcher
	case config.RoleFormatter:
		r.deps.Formatter = service.NewFormatter(b.cache, b.store)
	case config.RoleOrchestrator:
		validator := orchestrator.NewHTTPStage("validator", cfg.ValidatorURL, "validate", cfg.StageTimeout)
		fetcher := orchestrator.NewHTTPStage("fetcher", cfg.FetcherURL, "fetch", cfg.StageTimeout)
		formatter := orchestrator.NewHTTPStage("formatter", cfg.FormatterURL, "get", cfg.StageTimeout)
		r.deps.Gateway = orchestrator.New(validator, fetcher, formatter)
		r.health.Checks = map[string]func(context.Context) error{
			validator.Name(): validator.Ping,
			fetcher.Name():   fetcher.Ping,
			formatter.Name(): formatter.Ping,
		}
		if cfg.RateLimitRPS > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
			r.health.RateLimitRPS = cfg.RateLimitRPS
			r.health.OverloadWindow = cfg.OverloadWindow
			r.health.OverloadThresholdPct = cfg.OverloadThresholdPct
		}
	default:
		return nil, fmt.Errorf("unknown role %q", name)
	}
	return r, nil
}

// server returns the listener for r, sharing inflight with every other listener.
func (r *role) server(cfg *config.Config, inflight *httphandler.InFlightTracker, logger *zap.Logger) *http.Server {
	roleLogger := logger.With(zap.String("service", serviceNames[r.name]))
	h := httphandler.NewHandler(r.deps, r.health, roleLogger)
	router := httphandler.NewRouter(h, httphandler.RouterOptions{
		Service:        serviceNames[r.name],
		Logger:         roleLogger,
		InFlight:       inflight,
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        r.limiter,
	})
	return &http.Server{
		Addr:         ":" + cfg.Ports[r.name],
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}
}

// startWarming prefetches the configured zipcodes through f. With an interval
// it keeps refreshing until ctx is done; otherwise it runs once.
func startWarming(ctx context.Context, cfg *config.Config, f *service.Fetcher, logger *zap.Logger) error {
	warmer := cache.NewCacheWarmer(f, logger)
	if cfg.WarmInterval > 0 {
		err := warmer.WarmPeriodic(ctx, cfg.WarmZipcodes, cfg.WarmInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := warmer.Warm(warmCtx, cfg.WarmZipcodes); err != nil {
		logger.Warn("cache warming failed", zap.Error(err))
	}
	return nil
}
