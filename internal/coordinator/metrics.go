package coordinator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/forge/internal/coordinator"

// runMetrics holds the coordinator's instruments. A failed instrument is left
// nil and skipped.
type runMetrics struct {
	runs            metric.Int64Counter
	attempts        metric.Int64Counter
	attemptDuration metric.Float64Histogram
	faults          metric.Int64Counter
}

func newRunMetrics(meter metric.Meter, logger *logging.Logger) *runMetrics {
	m := &runMetrics{}
	ctx := context.Background()
	var err error

	m.runs, err = meter.Int64Counter(
		"forge.coordinator.runs",
		metric.WithDescription("Completed coordinator runs labeled by terminal status (accepted, exhausted, cancelled, faulted)."),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create runs counter", zap.Error(err))
	}

	m.attempts, err = meter.Int64Counter(
		"forge.coordinator.attempts",
		metric.WithDescription("Generate+validate cycles labeled by verdict (valid, invalid)."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create attempts counter", zap.Error(err))
	}

	m.attemptDuration, err = meter.Float64Histogram(
		"forge.coordinator.attempt_duration_seconds",
		metric.WithDescription("Wall time of one generate+validate cycle in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create attempt duration histogram", zap.Error(err))
	}

	m.faults, err = meter.Int64Counter(
		"forge.coordinator.collaborator_faults",
		metric.WithDescription("Collaborator faults labeled by collaborator and whether the call timed out."),
		metric.WithUnit("{fault}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create faults counter", zap.Error(err))
	}

	return m
}

func (m *runMetrics) recordRun(ctx context.Context, status State) {
	if m.runs != nil {
		m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

func (m *runMetrics) recordAttempt(ctx context.Context, valid bool, d time.Duration) {
	verdict := "invalid"
	if valid {
		verdict = "valid"
	}
	attrs := metric.WithAttributes(attribute.String("verdict", verdict))
	if m.attempts != nil {
		m.attempts.Add(ctx, 1, attrs)
	}
	if m.attemptDuration != nil {
		m.attemptDuration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *runMetrics) recordFault(ctx context.Context, who Collaborator, timeout bool) {
	if m.faults != nil {
		m.faults.Add(ctx, 1, metric.WithAttributes(
			attribute.String("collaborator", string(who)),
			attribute.Bool("timeout", timeout),
		))
	}
}
