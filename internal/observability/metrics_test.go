package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies label dimensions match how client, cache, service,
// orchestrator and http packages use them; a mismatch panics.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("api-server", "GET", "/api/weather/{zipcode}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("api-server", "GET", "/api/weather/{zipcode}").Observe(0.01)
	StageRequestsTotal.WithLabelValues("validator", "cache").Inc()
	CacheHitsTotal.WithLabelValues("identifier").Inc()
	CacheMissesTotal.WithLabelValues("data").Inc()
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(0.001)
	StoreOperationDurationSeconds.WithLabelValues("append_observation", "success").Observe(0.002)
	ProviderCallsTotal.WithLabelValues("success").Inc()
	ProviderDurationSeconds.WithLabelValues("success").Observe(0.1)
	ProviderErrorsTotal.WithLabelValues("upstream_5xx").Inc()
	OrchestratorRequestsTotal.WithLabelValues("ok").Inc()
	RecordCircuitBreakerTransition("weather_api", "closed", "open", 1)
}

// TestMetricsHandler_ServesPrometheusFormat verifies MetricsHandler serves the
// Prometheus text exposition format.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	StageRequestsTotal.WithLabelValues("formatter", "database").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "stageRequestsTotal") {
		t.Error("MetricsHandler response should contain stageRequestsTotal")
	}
}
