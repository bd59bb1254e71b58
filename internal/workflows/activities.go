package workflows

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
	"github.com/fyrsmithlabs/forge/internal/services"
)

// Pipeline is the part of services.Service the activities drive.
type Pipeline interface {
	Start(ctx context.Context, spec pipeline.RequirementSpec) (pipeline.RequirementSpec, error)
	PrepareContext(ctx context.Context, spec pipeline.RequirementSpec) (pipeline.StructuredContext, error)
	Complete(ctx context.Context, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, maxAttempts int) (*services.Outcome, error)
}

// Activities runs pipeline stages inside a Temporal worker. Register the
// struct with worker.RegisterActivity.
type Activities struct {
	pipeline  Pipeline
	logger    *logging.Logger
	heartbeat time.Duration
}

// NewActivities wraps p. A nil logger discards output.
func NewActivities(p Pipeline, logger *logging.Logger) *Activities {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Activities{pipeline: p, logger: logger, heartbeat: DefaultHeartbeat / 3}
}

// PrepareContext validates the spec, announces the run, then scrapes and
// normalizes its sources. Like RunCoordinator it heartbeats while running.
func (a *Activities) PrepareContext(ctx context.Context, input PrepareContextInput) (*PrepareContextResult, error) {
	ctx = logging.WithRunID(ctx, input.RunID)
	start := time.Now()
	defer a.observe(ctx, "prepare_context", start)

	stop := a.keepAlive(ctx)
	defer stop()

	spec, err := a.pipeline.Start(ctx, input.Spec)
	if err != nil {
		return nil, a.fail(ctx, "prepare_context", err, nil)
	}
	sc, err := a.pipeline.PrepareContext(ctx, spec)
	if err != nil {
		return nil, a.fail(ctx, "prepare_context", err, nil)
	}
	return &PrepareContextResult{Spec: spec, Context: sc}, nil
}

// RunCoordinator runs the generate/validate loop and delivers the result.
// It heartbeats while running so workflow cancellation reaches the loop.
func (a *Activities) RunCoordinator(ctx context.Context, input RunCoordinatorInput) (*GenerateCodeResult, error) {
	ctx = logging.WithRunID(ctx, input.RunID)
	start := time.Now()
	defer a.observe(ctx, "run_coordinator", start)

	stop := a.keepAlive(ctx)
	defer stop()

	out, err := a.pipeline.Complete(ctx, input.Spec, input.Context, input.MaxAttempts)
	var status string
	if out != nil && out.Report != nil {
		status = out.Report.Status
	}
	runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))

	if err != nil {
		var report *delivery.Report
		if out != nil {
			report = out.Report
		}
		return nil, a.fail(ctx, "run_coordinator", err, report)
	}
	return &GenerateCodeResult{RunID: out.RunID, Status: status, Report: out.Report}, nil
}

// keepAlive heartbeats until the returned func is called.
func (a *Activities) keepAlive(ctx context.Context) func() {
	if !activity.IsActivity(ctx) || a.heartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(a.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}

func (a *Activities) fail(ctx context.Context, name string, err error, report *delivery.Report) error {
	typ := ErrorType(err)
	activityErrorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("activity", name),
		attribute.String("type", typ),
	))
	a.logger.Warn(ctx, "activity failed",
		zap.String("activity", name),
		zap.String("type", typ),
		zap.Error(err),
	)
	return activityError(err, report)
}

func (a *Activities) observe(ctx context.Context, name string, start time.Time) {
	activityDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("activity", name)))
}
