package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// DefaultMaxAttempts is the attempt budget used when none is configured.
const DefaultMaxAttempts = 3

// FeedbackPolicy decides which diagnostics reach the next generation call.
type FeedbackPolicy int

const (
	// LatestFeedback passes only the immediately preceding verdict's errors.
	LatestFeedback FeedbackPolicy = iota

	// CumulativeFeedback passes the errors of every failed attempt so far,
	// oldest first.
	CumulativeFeedback
)

// String returns the policy name used in configuration.
func (p FeedbackPolicy) String() string {
	if p == CumulativeFeedback {
		return "cumulative"
	}
	return "latest"
}

// ParseFeedbackPolicy parses "latest" or "cumulative".
func ParseFeedbackPolicy(s string) (FeedbackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "latest":
		return LatestFeedback, nil
	case "cumulative":
		return CumulativeFeedback, nil
	default:
		return LatestFeedback, fmt.Errorf("unknown feedback policy %q", s)
	}
}

// next computes the feedback for the following attempt.
func (p FeedbackPolicy) next(prev, latest []pipeline.Diagnostic) []pipeline.Diagnostic {
	if p == CumulativeFeedback {
		out := make([]pipeline.Diagnostic, 0, len(prev)+len(latest))
		out = append(out, prev...)
		return append(out, latest...)
	}
	return append([]pipeline.Diagnostic(nil), latest...)
}

// Observer receives every state transition of a run.
type Observer func(ctx context.Context, t Transition)

type options struct {
	maxAttempts     int
	generateTimeout time.Duration
	validateTimeout time.Duration
	feedback        FeedbackPolicy
	logger          *logging.Logger
	tracer          trace.Tracer
	meter           metric.Meter
	observers       []Observer
}

// Option configures a Coordinator.
type Option func(*options)

// WithMaxAttempts sets the default attempt budget used by Run.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		o.maxAttempts = n
	}
}

// WithGenerateTimeout bounds each generation call. Zero disables the bound.
func WithGenerateTimeout(d time.Duration) Option {
	return func(o *options) {
		o.generateTimeout = d
	}
}

// WithValidateTimeout bounds each validation call. Zero disables the bound.
func WithValidateTimeout(d time.Duration) Option {
	return func(o *options) {
		o.validateTimeout = d
	}
}

// WithFeedbackPolicy selects latest-only or cumulative feedback.
func WithFeedbackPolicy(p FeedbackPolicy) Option {
	return func(o *options) {
		o.feedback = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the tracer used for run and attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMeter sets the meter used for run and attempt metrics.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithObserver registers a transition observer. Observers run synchronously
// on the run's goroutine and must not block.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}
