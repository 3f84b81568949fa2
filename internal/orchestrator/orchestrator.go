// Package orchestrator drives a request through validator, fetcher and
// formatter in order and relays the first failure unchanged.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-pipeline/internal/observability"
)

// ErrMalformedResponse is returned when a stage answers with a body that is not JSON.
var ErrMalformedResponse = errors.New("stage returned a non-JSON body")

// Response is a stage answer: status and raw body, relayed without re-encoding.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Stage is one pipeline step addressed by zipcode. An error means the stage
// could not be reached or its answer could not be read; any HTTP status,
// including 4xx and 5xx, is a Response.
type Stage interface {
	Call(ctx context.Context, zipcode string) (Response, error)
}

// State is the position of one request in the pipeline.
type State int

const (
	StateValidating State = iota
	StateFetching
	StateFormatting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateFetching:
		return "fetching"
	case StateFormatting:
		return "formatting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stageName labels metrics and logs by the stage active in s.
func (s State) stageName() string {
	switch s {
	case StateValidating:
		return "validator"
	case StateFetching:
		return "fetcher"
	case StateFormatting:
		return "formatter"
	default:
		return s.String()
	}
}

// Orchestrator runs the three stages strictly in order. It keeps no state
// between requests and never retries or compensates.
type Orchestrator struct {
	stages map[State]Stage
}

func New(validator, fetcher, formatter Stage) *Orchestrator {
	return &Orchestrator{stages: map[State]Stage{
		StateValidating: validator,
		StateFetching:   fetcher,
		StateFormatting: formatter,
	}}
}

// Handle advances only on a 2xx answer. The first non-2xx answer is returned
// as-is and later stages are not called. On success the formatter's answer is
// returned with status 200.
func (o *Orchestrator) Handle(ctx context.Context, zipcode string) (Response, error) {
	logger := observability.LoggerFromContext(ctx).With(zap.String("zipcode", zipcode))

	state := StateValidating
	var resp Response
	for state != StateDone {
		stage := o.stages[state]
		var err error
		resp, err = stage.Call(ctx, zipcode)
		if err == nil && !json.Valid(resp.Body) {
			err = ErrMalformedResponse
		}
		if err != nil {
			observability.OrchestratorRequestsTotal.WithLabelValues("transport").Inc()
			logger.Error("stage call failed",
				zap.String("stage", state.stageName()),
				zap.Error(err),
			)
			return Response{}, fmt.Errorf("%s: %w", state.stageName(), err)
		}
		if !resp.OK() {
			observability.OrchestratorRequestsTotal.WithLabelValues(state.stageName()).Inc()
			logger.Info("stage rejected request",
				zap.String("stage", state.stageName()),
				zap.Int("status", resp.StatusCode),
			)
			return resp, nil
		}
		next := advance(state)
		logger.Debug("stage complete", zap.String("from", state.String()), zap.String("to", next.String()))
		state = next
	}

	observability.OrchestratorRequestsTotal.WithLabelValues("ok").Inc()
	resp.StatusCode = 200
	return resp, nil
}

func advance(s State) State {
	switch s {
	case StateValidating:
		return StateFetching
	case StateFetching:
		return StateFormatting
	case StateFormatting:
		return StateDone
	default:
		return StateFailed
	}
}
