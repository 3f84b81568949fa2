package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-pipeline/internal/observability"
)

// maxStageBody caps how much of a stage answer is read.
const maxStageBody = 1 << 20

// HTTPStage calls a stage service at GET <BaseURL>/<Path>/<zipcode>.
type HTTPStage struct {
	name    string
	baseURL string
	path    string
	client  *http.Client
}

// NewHTTPStage returns an HTTPStage. timeout bounds each call; zero means 10s.
func NewHTTPStage(name, baseURL, path string, timeout time.Duration) *HTTPStage {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStage{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    strings.Trim(path, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name is the stage's label in health checks.
func (s *HTTPStage) Name() string {
	return s.name
}

func (s *HTTPStage) Call(ctx context.Context, zipcode string) (Response, error) {
	target := s.baseURL + "/" + s.path + "/" + url.PathEscape(zipcode)
	resp, err := s.get(ctx, target)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStageBody))
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", s.name, err)
	}
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// Ping reports whether the stage's /health answers 200.
func (s *HTTPStage) Ping(ctx context.Context) error {
	resp, err := s.get(ctx, s.baseURL+"/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxStageBody))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s health returned HTTP %d", s.name, resp.StatusCode)
	}
	return nil
}

func (s *HTTPStage) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", s.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", s.name, err)
	}
	return resp, nil
}

var _ Stage = (*HTTPStage)(nil)
