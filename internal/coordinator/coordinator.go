package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// Result is the structured outcome of a run. It is returned for every
// terminal state, alongside the error for non-accepted outcomes.
type Result struct {
	// Status is the terminal state.
	Status State `json:"status"`

	// Artifact is the accepted artifact. Nil unless Status is accepted.
	Artifact *pipeline.CodeArtifact `json:"artifact,omitempty"`

	// Attempts is the audit trail of completed attempts, in order.
	Attempts []pipeline.AttemptRecord `json:"attempts"`

	// Verdict is the last verdict observed, if any attempt completed.
	Verdict *pipeline.Verdict `json:"verdict,omitempty"`

	// Transitions is the full state history of the run.
	Transitions []Transition `json:"transitions"`
}

// Accepted reports whether the run produced a valid artifact.
func (r *Result) Accepted() bool {
	return r != nil && r.Status == StateAccepted
}

// Coordinator drives generate→validate cycles until acceptance or exhaustion.
//
// A Coordinator holds no per-run state, so one value may serve any number of
// concurrent runs.
type Coordinator struct {
	generator pipeline.Generator
	validator pipeline.Validator
	opts      options
	metrics   *runMetrics
}

// New creates a coordinator over the given collaborators.
func New(gen pipeline.Generator, val pipeline.Validator, opts ...Option) (*Coordinator, error) {
	if gen == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if val == nil {
		return nil, errors.New("validator cannot be nil")
	}

	o := options{
		maxAttempts: DefaultMaxAttempts,
		feedback:    LatestFeedback,
		logger:      logging.NewNop(),
		tracer:      otel.Tracer(instrumentationName),
		meter:       otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", o.maxAttempts)
	}
	if o.generateTimeout < 0 || o.validateTimeout < 0 {
		return nil, errors.New("collaborator timeouts cannot be negative")
	}

	return &Coordinator{
		generator: gen,
		validator: val,
		opts:      o,
		metrics:   newRunMetrics(o.meter, o.logger),
	}, nil
}

// MaxAttempts returns the default attempt budget.
func (c *Coordinator) MaxAttempts() int {
	return c.opts.maxAttempts
}

// Run executes the loop with the configured attempt budget.
func (c *Coordinator) Run(ctx context.Context, spec pipeline.RequirementSpec, sc pipeline.StructuredContext) (*Result, error) {
	return c.RunN(ctx, spec, sc, c.opts.maxAttempts)
}

// RunN executes the loop with an explicit attempt budget.
//
// Outcomes:
//   - accepted: (result, nil)
//   - exhausted: (result, *ExhaustedRetriesError)
//   - collaborator fault or timeout: (result, *CollaboratorError / *TimeoutError)
//   - cancelled between attempts: (result, *CancelledError)
//
// Invalid input returns (nil, ErrInvalidInput) without calling anything.
func (c *Coordinator) RunN(ctx context.Context, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, maxAttempts int) (*Result, error) {
	if spec.IsEmpty() {
		return nil, fmt.Errorf("%w: requirement is empty", ErrInvalidInput)
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidInput, maxAttempts)
	}

	spec = spec.Clone()
	sc = sc.Clone()

	ctx, span := c.opts.tracer.Start(ctx, "forge.coordinator.run", trace.WithAttributes(
		attribute.Int("forge.max_attempts", maxAttempts),
		attribute.String("forge.generator", c.generator.Name()),
		attribute.String("forge.validator", c.validator.Name()),
		attribute.Int("forge.context_records", sc.Len()),
	))
	defer span.End()

	r := &run{
		c:           c,
		maxAttempts: maxAttempts,
		machine:     newMachine(),
		span:        span,
	}
	c.opts.logger.Info(ctx, "run started",
		zap.Int("max_attempts", maxAttempts),
		zap.String("generator", c.generator.Name()),
		zap.String("validator", c.validator.Name()),
		zap.Int("context_records", sc.Len()),
	)

	var feedback []pipeline.Diagnostic
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return r.cancel(ctx, attempt, err)
		}

		done, res, err := r.attempt(ctx, attempt, spec, sc, feedback)
		if done {
			return res, err
		}
		feedback = c.opts.feedback.next(feedback, r.last().Verdict.Errors)
	}

	// Unreachable: the final attempt always terminates inside r.attempt.
	panic("coordinator: loop exited without a terminal state")
}

// run is the per-invocation state of RunN.
type run struct {
	c           *Coordinator
	maxAttempts int
	machine     *machine
	attempts    []pipeline.AttemptRecord
	span        trace.Span
}

func (r *run) last() pipeline.AttemptRecord {
	return r.attempts[len(r.attempts)-1]
}

// attempt executes one generate+validate cycle. done is true when the run
// reached a terminal state.
func (r *run) attempt(ctx context.Context, attempt int, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, feedback []pipeline.Diagnostic) (bool, *Result, error) {
	c := r.c
	ctx = logging.WithAttempt(ctx, attempt)
	ctx, span := c.opts.tracer.Start(ctx, "forge.coordinator.attempt", trace.WithAttributes(
		attribute.Int("forge.attempt", attempt),
		attribute.Int("forge.feedback_count", len(feedback)),
	))
	defer span.End()

	started := time.Now()
	r.transition(ctx, StateGenerating, attempt)

	artifact, err := invoke(ctx, c.opts.generateTimeout, func(ctx context.Context) (*pipeline.CodeArtifact, error) {
		return c.generator.Generate(ctx, spec, sc, append([]pipeline.Diagnostic(nil), feedback...))
	})
	if err == nil && artifact == nil {
		err = fmt.Errorf("%w: generator returned a nil artifact", ErrContractViolation)
	}
	if err != nil {
		span.SetStatus(codes.Error, "generation failed")
		res, ferr := r.fail(ctx, CollaboratorGeneration, c.generator.Name(), attempt, c.opts.generateTimeout, err)
		return true, res, ferr
	}
	// Generators may hand back a shared value; each attempt keeps its own copy.
	artifact = artifact.Clone()
	stamp(artifact, attempt, feedback, c.generator.Name())

	r.transition(ctx, StateValidating, attempt)
	verdict, err := invoke(ctx, c.opts.validateTimeout, func(ctx context.Context) (pipeline.Verdict, error) {
		return c.validator.Validate(ctx, artifact)
	})
	if err == nil {
		if cerr := verdict.Check(); cerr != nil {
			err = fmt.Errorf("%w: %v", ErrContractViolation, cerr)
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, "validation failed")
		res, ferr := r.fail(ctx, CollaboratorValidation, c.validator.Name(), attempt, c.opts.validateTimeout, err)
		return true, res, ferr
	}

	duration := time.Since(started)
	r.attempts = append(r.attempts, pipeline.AttemptRecord{
		Index:     attempt,
		Feedback:  append([]pipeline.Diagnostic(nil), feedback...),
		Artifact:  artifact,
		Verdict:   verdict,
		StartedAt: started,
		Duration:  duration,
	})
	c.metrics.recordAttempt(ctx, verdict.Valid, duration)
	span.SetAttributes(
		attribute.Bool("forge.valid", verdict.Valid),
		attribute.Int("forge.error_count", len(verdict.Errors)),
	)

	switch {
	case verdict.Valid:
		r.transition(ctx, StateAccepted, attempt)
		c.opts.logger.Info(ctx, "artifact accepted",
			zap.Int("units", len(artifact.Units)),
			zap.Duration("attempt_duration", duration),
		)
		return true, r.finish(ctx, StateAccepted, artifact), nil

	case attempt == r.maxAttempts:
		r.transition(ctx, StateExhausted, attempt)
		c.opts.logger.Warn(ctx, "attempts exhausted",
			zap.Int("max_attempts", r.maxAttempts),
			zap.Int("final_error_count", len(verdict.Errors)),
		)
		res := r.finish(ctx, StateExhausted, nil)
		return true, res, &ExhaustedRetriesError{
			MaxAttempts: r.maxAttempts,
			Attempts:    res.Attempts,
			Errors:      append([]pipeline.Diagnostic(nil), verdict.Errors...),
		}

	default:
		r.transition(ctx, StateReassigning, attempt)
		c.opts.logger.Info(ctx, "artifact rejected, reassigning",
			zap.Int("error_count", len(verdict.Errors)),
			zap.Strings("error_codes", diagnosticCodes(verdict.Errors)),
		)
		return false, nil, nil
	}
}

// fail terminates the run after a collaborator call returned an error. A
// context error caused by the caller is a cancellation, not a fault.
func (r *run) fail(ctx context.Context, who Collaborator, name string, attempt int, timeout time.Duration, err error) (*Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return r.cancel(ctx, attempt, ctxErr)
	}

	base := CollaboratorError{Collaborator: who, Name: name, Attempt: attempt, Err: err}
	var out error = &base
	timedOut := errors.Is(err, errCallTimeout)
	if timedOut {
		out = &TimeoutError{CollaboratorError: base, Timeout: timeout}
	}

	r.transition(ctx, StateFaulted, attempt)
	r.c.metrics.recordFault(ctx, who, timedOut)
	r.span.RecordError(out)
	r.c.opts.logger.Error(ctx, "collaborator fault",
		zap.String("collaborator", string(who)),
		zap.String("name", name),
		zap.Bool("timeout", timedOut),
		zap.Error(err),
	)
	return r.finish(ctx, StateFaulted, nil), out
}

func (r *run) cancel(ctx context.Context, attempt int, ctxErr error) (*Result, error) {
	r.transition(ctx, StateCancelled, attempt)
	r.c.opts.logger.Info(ctx, "run cancelled",
		zap.Int("completed_attempts", len(r.attempts)),
		zap.Error(ctxErr),
	)
	res := r.finish(ctx, StateCancelled, nil)
	return res, &CancelledError{Attempt: attempt, Attempts: res.Attempts, Err: ctxErr}
}

func (r *run) finish(ctx context.Context, status State, artifact *pipeline.CodeArtifact) *Result {
	res := &Result{
		Status:      status,
		Artifact:    artifact,
		Attempts:    append([]pipeline.AttemptRecord{}, r.attempts...),
		Transitions: append([]Transition(nil), r.machine.history...),
	}
	if len(r.attempts) > 0 {
		v := r.last().Verdict
		res.Verdict = &v
	}

	r.span.SetAttributes(
		attribute.String("forge.status", string(status)),
		attribute.Int("forge.attempts", len(r.attempts)),
	)
	if status != StateAccepted {
		r.span.SetStatus(codes.Error, string(status))
	}
	r.c.metrics.recordRun(ctx, status)
	return res
}

func (r *run) transition(ctx context.Context, to State, attempt int) {
	t := r.machine.move(to, attempt)
	r.c.opts.logger.Debug(ctx, "state transition",
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	)
	for _, obs := range r.c.opts.observers {
		obs(ctx, t)
	}
}

// stamp records provenance on a freshly generated artifact.
func stamp(a *pipeline.CodeArtifact, attempt int, feedback []pipeline.Diagnostic, generator string) {
	a.Metadata.Attempt = attempt
	a.Metadata.Feedback = append([]pipeline.Diagnostic(nil), feedback...)
	if a.Metadata.Generator == "" {
		a.Metadata.Generator = generator
	}
	if a.Metadata.CreatedAt.IsZero() {
		a.Metadata.CreatedAt = time.Now()
	}
}

func diagnosticCodes(diags []pipeline.Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}
