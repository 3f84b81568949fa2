package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/weather-pipeline/internal/circuitbreaker"
	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/observability"
)

// DefaultBaseURL is the OpenWeatherMap current-conditions endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Provider returns current conditions for a zipcode. The returned DataRecord
// has no Timestamp; the caller stamps it when the observation is recorded.
type Provider interface {
	CurrentConditions(ctx context.Context, zipcode string) (models.DataRecord, error)
	// Configured reports whether a credential is present. No call is made without one.
	Configured() bool
}

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("weather API key not configured")
	// ErrUnavailable is returned without calling upstream while the circuit breaker is open.
	ErrUnavailable = errors.New("weather provider unavailable")
	// ErrIncompleteResponse is a 2xx answer missing the city, conditions or weather list.
	ErrIncompleteResponse = errors.New("incomplete weather response")
)

// UpstreamError is a non-2xx answer from the provider. Message is the provider's
// own "message" field, empty when the body carried none.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Options configures an OpenWeatherClient. Zero Country, Units and BaseURL use
// "US", "imperial" and DefaultBaseURL.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Country string
	Units   string
}

// OpenWeatherClient calls the OpenWeatherMap current-weather API by zipcode.
// Each call is a single attempt; there are no retries.
type OpenWeatherClient struct {
	apiKey  string
	baseURL *url.URL
	country string
	units   string
	client  *http.Client
	cb      *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient builds a client. An empty APIKey is allowed; Configured
// then reports false and every call fails with ErrNotConfigured.
func NewOpenWeatherClient(opts Options) (*OpenWeatherClient, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q: scheme and host are required", raw)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	country := opts.Country
	if country == "" {
		country = "US"
	}
	units := opts.Units
	if units == "" {
		units = "imperial"
	}
	return &OpenWeatherClient{
		apiKey:  opts.APIKey,
		baseURL: base,
		country: country,
		units:   units,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// SetCircuitBreaker wraps subsequent provider calls in cb. Only errors
// IsBreakerFailure accepts should count against it.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.cb = cb
}

// IsBreakerFailure reports whether err means the provider itself is unhealthy:
// transport failures and 5xx. A 404 for an unknown zipcode is a valid answer.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode >= 500
	}
	return true
}

func (c *OpenWeatherClient) Configured() bool {
	return c.apiKey != ""
}

type openWeatherResponse struct {
	Name    string                 `json:"name"`
	Main    *openWeatherMain       `json:"main"`
	Weather []openWeatherCondition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type openWeatherMain struct {
	Temp     float64 `json:"temp"`
	Humidity int     `json:"humidity"`
}

type openWeatherCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type openWeatherError struct {
	Message string `json:"message"`
}

func (c *OpenWeatherClient) CurrentConditions(ctx context.Context, zipcode string) (models.DataRecord, error) {
	if !c.Configured() {
		return models.DataRecord{}, ErrNotConfigured
	}
	if c.cb == nil {
		return c.callAPI(ctx, zipcode)
	}

	var rec models.DataRecord
	err := c.cb.Call(ctx, func() error {
		var callErr error
		rec, callErr = c.callAPI(ctx, zipcode)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.ProviderErrorsTotal.WithLabelValues(string(ErrorCategoryCircuitOpen)).Inc()
		return models.DataRecord{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return rec, err
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, zipcode string) (rec models.DataRecord, err error) {
	start := time.Now()
	status := "error"
	defer func() {
		observability.ProviderCallsTotal.WithLabelValues(status).Inc()
		observability.ProviderDurationSeconds.WithLabelValues(status).Observe(time.Since(start).Seconds())
		if err != nil {
			observability.ProviderErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		}
	}()

	req, err := c.buildRequest(ctx, zipcode)
	if err != nil {
		return models.DataRecord{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.DataRecord{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.DataRecord{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	status = statusLabel(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.DataRecord{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr openWeatherError
		_ = json.Unmarshal(body, &apiErr)
		return models.DataRecord{}, &UpstreamError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.DataRecord{}, fmt.Errorf("parse response: %w", err)
	}
	return mapResponse(apiResp, zipcode)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, zipcode string) (*http.Request, error) {
	u := *c.baseURL
	params := u.Query()
	params.Set("zip", zipcode+","+c.country)
	params.Set("units", c.units)
	params.Set("appid", c.apiKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// mapResponse rejects replies that would produce a blank record.
func mapResponse(apiResp openWeatherResponse, zipcode string) (models.DataRecord, error) {
	switch {
	case apiResp.Name == "":
		return models.DataRecord{}, fmt.Errorf("%w: missing name", ErrIncompleteResponse)
	case apiResp.Main == nil:
		return models.DataRecord{}, fmt.Errorf("%w: missing main", ErrIncompleteResponse)
	case len(apiResp.Weather) == 0:
		return models.DataRecord{}, fmt.Errorf("%w: missing weather", ErrIncompleteResponse)
	}
	description := apiResp.Weather[0].Description
	if description == "" {
		description = apiResp.Weather[0].Main
	}
	return models.DataRecord{
		Zipcode:     zipcode,
		City:        apiResp.Name,
		Temperature: apiResp.Main.Temp,
		Description: description,
		WindSpeed:   apiResp.Wind.Speed,
		Humidity:    apiResp.Main.Humidity,
	}, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

var _ Provider = (*OpenWeatherClient)(nil)
