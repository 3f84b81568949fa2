package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-pipeline/internal/client"
	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/observability"
	"github.com/kjstillabower/weather-pipeline/internal/orchestrator"
	"github.com/kjstillabower/weather-pipeline/internal/service"
	"github.com/kjstillabower/weather-pipeline/internal/traffic"
)

// Response messages. Callers match on these strings, so they are fixed.
const (
	msgInvalidFormat    = "Invalid zipcode format. Must be 5 digits."
	msgValidateFailed   = "Failed to validate zipcode"
	msgFetchFailed      = "Failed to fetch weather data"
	msgNotConfigured    = "Weather API key not configured"
	msgProviderDown     = "Weather provider unavailable"
	msgNotFound         = "No weather data found for this zipcode"
	msgResultFailed     = "Failed to get result"
	msgHistoryFailed    = "Failed to fetch history"
	msgProcessFailed    = "Failed to process request"
	msgTooManyRequests  = "Too many requests"
	msgRouteNotFound    = "Not found"
	msgMethodNotAllowed = "Method not allowed"
)

// Validator is the validator stage.
type Validator interface {
	Validate(ctx context.Context, zipcode string) (models.Validation, error)
}

// Fetcher is the fetcher stage.
type Fetcher interface {
	Fetch(ctx context.Context, zipcode string) (json.RawMessage, error)
	Configured() bool
}

// Formatter is the formatter stage.
type Formatter interface {
	Result(ctx context.Context, zipcode string) (models.FormattedResult, error)
	History(ctx context.Context, zipcode string, limit int) (models.History, error)
}

// Gateway drives a request through every stage.
type Gateway interface {
	Handle(ctx context.Context, zipcode string) (orchestrator.Response, error)
}

// Dependencies selects which role a Handler serves. Exactly one field is
// normally set; routes are registered only for the ones present.
type Dependencies struct {
	Validator Validator
	Fetcher   Fetcher
	Formatter Formatter
	Gateway   Gateway
}

// Handler serves one role's routes plus /health.
type Handler struct {
	deps             Dependencies
	healthConfig     *HealthConfig
	logger           *zap.Logger
	tracker          *traffic.Tracker
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a Handler for deps. A nil healthConfig reports only
// shutdown state; a nil logger discards logs.
func NewHandler(deps Dependencies, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		deps:         deps,
		healthConfig: healthConfig,
		logger:       logger,
		tracker:      traffic.NewTracker(),
	}
}

// Tracker returns the outcome window used for health decisions.
func (h *Handler) Tracker() *traffic.Tracker {
	return h.tracker
}

// GetValidate handles GET /validate/{zipcode}.
func (h *Handler) GetValidate(w http.ResponseWriter, r *http.Request) {
	zipcode := mux.Vars(r)["zipcode"]
	result, err := h.deps.Validator.Validate(r.Context(), zipcode)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFormat) {
			writeError(w, http.StatusBadRequest, msgInvalidFormat)
			return
		}
		logError(r.Context(), "validate failed", zipcode, err)
		writeError(w, http.StatusInternalServerError, msgValidateFailed)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetFetch handles GET /fetch/{zipcode}. The body is the cached or freshly
// encoded record, written without re-encoding.
func (h *Handler) GetFetch(w http.ResponseWriter, r *http.Request) {
	zipcode := mux.Vars(r)["zipcode"]
	body, err := h.deps.Fetcher.Fetch(r.Context(), zipcode)
	if err != nil {
		writeFetchError(w, r, zipcode, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func writeFetchError(w http.ResponseWriter, r *http.Request, zipcode string, err error) {
	var upstream *client.UpstreamError
	switch {
	case errors.Is(err, service.ErrConfiguration):
		writeError(w, http.StatusInternalServerError, msgNotConfigured)
	case errors.As(err, &upstream):
		msg := upstream.Message
		if msg == "" {
			msg = msgFetchFailed
		}
		observability.LoggerFromContext(r.Context()).Info("provider rejected request",
			zap.String("zipcode", zipcode),
			zap.Int("status", upstream.StatusCode),
			zap.String("message", upstream.Message))
		writeError(w, upstream.StatusCode, msg)
	case errors.Is(err, service.ErrUnavailable):
		logError(r.Context(), "provider unavailable", zipcode, err)
		writeError(w, http.StatusServiceUnavailable, msgProviderDown)
	default:
		logError(r.Context(), "fetch failed", zipcode, err)
		writeError(w, http.StatusInternalServerError, msgFetchFailed)
	}
}

// GetResult handles GET /get/{zipcode}.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	zipcode := mux.Vars(r)["zipcode"]
	result, err := h.deps.Formatter.Result(r.Context(), zipcode)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgNotFound)
			return
		}
		logError(r.Context(), "result failed", zipcode, err)
		writeError(w, http.StatusInternalServerError, msgResultFailed)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetHistory handles GET /history/{zipcode}?limit=N. A missing, non-numeric
// or non-positive limit falls back to service.DefaultHistoryLimit.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	zipcode := mux.Vars(r)["zipcode"]
	limit := parseLimit(r.URL.Query().Get("limit"))
	history, err := h.deps.Formatter.History(r.Context(), zipcode, limit)
	if err != nil {
		logError(r.Context(), "history failed", zipcode, err)
		writeError(w, http.StatusInternalServerError, msgHistoryFailed)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return service.DefaultHistoryLimit
	}
	return min(n, service.MaxHistoryLimit)
}

// GetWeather handles GET /api/weather/{zipcode}. A stage failure is relayed
// with its own status and body; success is always answered with 200.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	zipcode := mux.Vars(r)["zipcode"]
	resp, err := h.deps.Gateway.Handle(r.Context(), zipcode)
	if err != nil {
		logError(r.Context(), "orchestration failed", zipcode, err)
		writeError(w, http.StatusInternalServerError, msgProcessFailed)
		return
	}
	writeRaw(w, resp.StatusCode, resp.Body)
}

func logError(ctx context.Context, msg, zipcode string, err error) {
	observability.LoggerFromContext(ctx).Error(msg, zap.String("zipcode", zipcode), zap.Error(err))
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw writes an already encoded JSON body.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError writes the flat {"error": message} body used by every role.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
