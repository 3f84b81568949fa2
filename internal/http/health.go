package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-pipeline/internal/lifecycle"
)

// Health status values.
const (
	StatusOK           = "ok"
	StatusDegraded     = "degraded"
	StatusOverloaded   = "overloaded"
	StatusShuttingDown = "shutting-down"
)

// defaultCheckTimeout bounds each dependency check when HealthConfig.CheckTimeout is unset.
const defaultCheckTimeout = 2 * time.Second

// HealthConfig holds the thresholds and dependency checks for GET /health.
type HealthConfig struct {
	// Service is reported as the "service" field.
	Service string
	// Checks are reported as connectivity booleans under "checks". They are
	// informational and never change the status.
	Checks       map[string]func(context.Context) error
	CheckTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	// Overload applies only when RateLimitRPS > 0.
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    h.runChecks(r.Context()),
	}
	if h.healthConfig != nil && h.healthConfig.Service != "" {
		resp["service"] = h.healthConfig.Service
	}
	if h.deps.Fetcher != nil {
		if h.deps.Fetcher.Configured() {
			resp["apiKey"] = "configured"
		} else {
			resp["apiKey"] = "missing"
		}
	}
	writeJSON(w, result.statusCode, resp)
}

// runChecks runs every configured check concurrently and reports reachability.
func (h *Handler) runChecks(ctx context.Context) map[string]bool {
	checks := make(map[string]bool)
	if h.healthConfig == nil || len(h.healthConfig.Checks) == 0 {
		return checks
	}
	timeout := h.healthConfig.CheckTimeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(h.healthConfig.Checks))
	for name, check := range h.healthConfig.Checks {
		go func(name string, check func(context.Context) error) {
			results <- outcome{name: name, err: check(ctx)}
		}(name, check)
	}
	for range h.healthConfig.Checks {
		o := <-results
		checks[o.name] = o.err == nil
		if o.err != nil {
			h.logger.Debug("health check failed", zap.String("check", o.name), zap.Error(o.err))
		}
	}
	return checks
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > ok.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{StatusShuttingDown, http.StatusServiceUnavailable, "signal"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{StatusOK, http.StatusOK, ""}
	}
	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(h.tracker.RequestCount(cfg.OverloadWindow)) > threshold {
			return healthResult{StatusOverloaded, http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := h.tracker.ErrorRate(cfg.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(cfg.DegradedErrorPct) {
				return healthResult{StatusDegraded, http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{StatusOK, http.StatusOK, ""}
}
