package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-pipeline/internal/observability"
)

// RouterOptions configures the middleware stack of one listener.
type RouterOptions struct {
	// Service labels request metrics.
	Service string
	Logger  *zap.Logger
	// InFlight is shared by every listener in the process; may be nil.
	InFlight *InFlightTracker
	// RequestTimeout bounds stage routes; zero disables it.
	RequestTimeout time.Duration
	// Limiter throttles stage routes; nil disables it.
	Limiter *rate.Limiter
}

// NewRouter registers /health, /metrics and the routes for every dependency h serves.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, msgRouteNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	})
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware(opts.Service, opts.InFlight))
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	// Denials are recorded by the limiter, so it sits outside the traffic recorder.
	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(opts.Limiter, h.tracker))
	api.Use(TrafficMiddleware(h.tracker))
	api.Use(TimeoutMiddleware(opts.RequestTimeout))

	if h.deps.Validator != nil {
		api.HandleFunc("/validate/{zipcode}", h.GetValidate).Methods(http.MethodGet)
	}
	if h.deps.Fetcher != nil {
		api.HandleFunc("/fetch/{zipcode}", h.GetFetch).Methods(http.MethodGet)
	}
	if h.deps.Formatter != nil {
		api.HandleFunc("/get/{zipcode}", h.GetResult).Methods(http.MethodGet)
		api.HandleFunc("/history/{zipcode}", h.GetHistory).Methods(http.MethodGet)
	}
	if h.deps.Gateway != nil {
		api.HandleFunc("/api/weather/{zipcode}", h.GetWeather).Methods(http.MethodGet)
	}
	return router
}
