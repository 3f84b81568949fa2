package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-pipeline/internal/cache"
	"github.com/kjstillabower/weather-pipeline/internal/service"
	"github.com/kjstillabower/weather-pipeline/internal/store/memory"
)

// setupBenchmarkValidator returns a router over a real validator with 90210 already cataloged.
func setupBenchmarkValidator(b *testing.B) http.Handler {
	b.Helper()
	v := service.NewValidator(cache.NewInMemoryCache(), memory.New())
	if _, err := v.Validate(context.Background(), "90210"); err != nil {
		b.Fatalf("Validate() error = %v", err)
	}
	return NewRouter(NewHandler(Dependencies{Validator: v}, nil, nil), RouterOptions{Service: "bench"})
}

func benchmarkRoute(b *testing.B, router http.Handler, path string, want int) {
	b.Helper()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			b.Fatalf("status = %d, want %d", w.Code, want)
		}
	}
}

// BenchmarkHandler_GetValidate_CacheHit benchmarks the identifier cache path.
func BenchmarkHandler_GetValidate_CacheHit(b *testing.B) {
	benchmarkRoute(b, setupBenchmarkValidator(b), "/validate/90210", http.StatusOK)
}

// BenchmarkHandler_GetValidate_InvalidFormat benchmarks rejection before any I/O.
func BenchmarkHandler_GetValidate_InvalidFormat(b *testing.B) {
	benchmarkRoute(b, setupBenchmarkValidator(b), "/validate/ABCDE", http.StatusBadRequest)
}

// BenchmarkHandler_GetFetch_Passthrough benchmarks writing cached bytes.
func BenchmarkHandler_GetFetch_Passthrough(b *testing.B) {
	body := json.RawMessage(`{"zipcode":"90210","city":"Beverly Hills","temperature":72.5,"description":"clear sky","windSpeed":5.8,"humidity":40,"timestamp":"2026-03-01T12:00:00Z"}`)
	router := NewRouter(NewHandler(Dependencies{Fetcher: &fakeFetcher{body: body, configured: true}}, nil, nil), RouterOptions{Service: "bench"})
	benchmarkRoute(b, router, "/fetch/90210", http.StatusOK)
}

// BenchmarkHandler_GetWeather_RateLimited benchmarks the 429 path.
func BenchmarkHandler_GetWeather_RateLimited(b *testing.B) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limiter.Allow()
	router := NewRouter(NewHandler(Dependencies{Gateway: &fakeGateway{resp: okResponse()}}, nil, nil),
		RouterOptions{Service: "bench", Limiter: limiter})
	benchmarkRoute(b, router, "/api/weather/90210", http.StatusTooManyRequests)
}

// BenchmarkHandler_GetHealth benchmarks the health endpoint with one check.
func BenchmarkHandler_GetHealth(b *testing.B) {
	cfg := &HealthConfig{
		Service: "bench",
		Checks:  map[string]func(context.Context) error{"cache": func(context.Context) error { return nil }},
	}
	router := NewRouter(NewHandler(Dependencies{}, cfg, nil), RouterOptions{Service: "bench"})
	benchmarkRoute(b, router, "/health", http.StatusOK)
}
