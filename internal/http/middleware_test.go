package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-pipeline/internal/observability"
	"github.com/kjstillabower/weather-pipeline/internal/orchestrator"
	"github.com/kjstillabower/weather-pipeline/internal/traffic"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	h := NewHandler(Dependencies{Validator: &fakeValidator{}}, nil, nil)
	w := serve(t, h, "/validate/90210")
	if w.Header().Get(CorrelationIDHeader) == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
		observability.LoggerFromContext(r.Context()).Info("echo")
	})

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(CorrelationIDHeader, "test-corr-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(CorrelationIDHeader); got != "test-corr-123" {
		t.Errorf("response header = %q, want test-corr-123", got)
	}
	if seen != "test-corr-123" {
		t.Errorf("context correlation ID = %q, want test-corr-123", seen)
	}
	entries := logs.FilterMessage("echo").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "test-corr-123" {
		t.Errorf("request logger missing correlation_id: %v", entries)
	}
}

func okResponse() orchestrator.Response {
	return orchestrator.Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}
}

func TestMiddleware_MetricsUsesRouteTemplate(t *testing.T) {
	h := NewHandler(Dependencies{Formatter: &fakeFormatter{err: errors.New("boom")}}, nil, nil)
	router := NewRouter(h, RouterOptions{Service: "metrics-test"})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/get/90210", nil))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	if !strings.Contains(body, `route="/get/{zipcode}",service="metrics-test",statusCode="5xx"`) {
		t.Error("metrics missing 5xx sample labelled with the route template")
	}
	if strings.Contains(body, "/get/90210") {
		t.Error("metrics leaked a zipcode into a label")
	}
}

func TestMiddleware_GetRouteUnmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	if got := getRoute(req); got != "unmatched" {
		t.Errorf("getRoute() = %q, want unmatched", got)
	}
}

func TestStatusCodeString(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 404: "4xx", 429: "4xx", 503: "5xx"} {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestTrafficMiddleware_ClassifiesOutcomes(t *testing.T) {
	tracker := traffic.NewTracker()
	router := mux.NewRouter()
	router.Use(TrafficMiddleware(tracker))
	router.HandleFunc("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		switch mux.Vars(r)["code"] {
		case "400":
			w.WriteHeader(http.StatusBadRequest)
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
		case "503":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	for _, code := range []string{"200", "400", "500", "503"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status/"+code, nil))
	}
	errs, total := tracker.ErrorRate(time.Minute)
	if errs != 2 || total != 4 {
		t.Errorf("ErrorRate() = (%d, %d), want (2, 4); 4xx is a success", errs, total)
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	router := mux.NewRouter()
	router.Use(TimeoutMiddleware(20 * time.Millisecond))
	router.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
				w.WriteHeader(http.StatusGatewayTimeout)
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504 from deadline", w.Code)
	}
}

func TestTimeoutMiddleware_ZeroDisabled(t *testing.T) {
	router := mux.NewRouter()
	router.Use(TimeoutMiddleware(0))
	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("deadline set with zero timeout")
		}
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/echo", nil))
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 2)
	h := NewHandler(Dependencies{Gateway: &fakeGateway{resp: okResponse()}}, nil, nil)
	router := NewRouter(h, RouterOptions{Service: "api-server", Limiter: limiter})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather/90210", nil))
		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		if got := decodeError(t, w); got != "Too many requests" {
			t.Errorf("error = %q, want Too many requests", got)
		}
	}
	if got := h.Tracker().DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount() = %d, want 1", got)
	}
	if got := h.Tracker().RequestCount(time.Minute); got != 3 {
		t.Errorf("RequestCount() = %d, want 3 (denials are not also counted as successes)", got)
	}
}

func TestRateLimitMiddleware_HealthNotLimited(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	h := NewHandler(Dependencies{Gateway: &fakeGateway{resp: okResponse()}}, nil, nil)
	router := NewRouter(h, RouterOptions{Limiter: limiter})
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("health request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(nil, nil))
	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {})
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/echo", nil))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestMiddleware_MetricsEndpoint(t *testing.T) {
	h := NewHandler(Dependencies{}, nil, nil)
	w := serve(t, h, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
