// Package testhelpers starts the whole pipeline on httptest listeners for
// end-to-end tests.
package testhelpers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kjstillabower/weather-pipeline/internal/cache"
	"github.com/kjstillabower/weather-pipeline/internal/client"
	httphandler "github.com/kjstillabower/weather-pipeline/internal/http"
	"github.com/kjstillabower/weather-pipeline/internal/orchestrator"
	"github.com/kjstillabower/weather-pipeline/internal/service"
	"github.com/kjstillabower/weather-pipeline/internal/store"
	"github.com/kjstillabower/weather-pipeline/internal/store/memory"
)

// Pipeline is a running validator, fetcher, formatter and orchestrator, each
// on its own listener, sharing one cache and one store.
type Pipeline struct {
	ValidatorURL string
	FetcherURL   string
	FormatterURL string
	GatewayURL   string

	Cache cache.Cache
	Store store.Store
}

// PipelineOptions overrides the shared backends. Nil fields get in-memory ones.
type PipelineOptions struct {
	Cache cache.Cache
	Store store.Store
	// StageTimeout bounds each orchestrator-to-stage call.
	StageTimeout time.Duration
}

// StartPipeline starts every role behind httptest servers closed at test cleanup.
func StartPipeline(t testing.TB, provider client.Provider, opts PipelineOptions) *Pipeline {
	t.Helper()
	if opts.Cache == nil {
		opts.Cache = cache.NewInMemoryCache()
	}
	if opts.Store == nil {
		opts.Store = memory.New()
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 5 * time.Second
	}

	validator := service.NewValidator(opts.Cache, opts.Store)
	fetcher := service.NewFetcher(provider, opts.Cache, opts.Store, service.FetcherOptions{})
	formatter := service.NewFormatter(opts.Cache, opts.Store)

	p := &Pipeline{Cache: opts.Cache, Store: opts.Store}
	p.ValidatorURL = startRole(t, "zipcode-service", httphandler.Dependencies{Validator: validator})
	p.FetcherURL = startRole(t, "weather-service", httphandler.Dependencies{Fetcher: fetcher})
	p.FormatterURL = startRole(t, "result-service", httphandler.Dependencies{Formatter: formatter})

	gateway := orchestrator.New(
		orchestrator.NewHTTPStage("validator", p.ValidatorURL, "validate", opts.StageTimeout),
		orchestrator.NewHTTPStage("fetcher", p.FetcherURL, "fetch", opts.StageTimeout),
		orchestrator.NewHTTPStage("formatter", p.FormatterURL, "get", opts.StageTimeout),
	)
	p.GatewayURL = startRole(t, "api-server", httphandler.Dependencies{Gateway: gateway})
	return p
}

func startRole(t testing.TB, name string, deps httphandler.Dependencies) string {
	t.Helper()
	h := httphandler.NewHandler(deps, &httphandler.HealthConfig{Service: name}, nil)
	srv := httptest.NewServer(httphandler.NewRouter(h, httphandler.RouterOptions{Service: name}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// Get issues a GET against url and returns the response. The caller closes the body.
func Get(t testing.TB, url string) *http.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}
