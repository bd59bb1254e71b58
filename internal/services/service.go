package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/events"
	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// ErrDelivery wraps failures to write an accepted artifact.
var ErrDelivery = errors.New("artifact delivery failed")

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Logger *logging.Logger

	// ReportDir receives <run_id>.json reports. Empty disables reports
	// unless ReportFile is set.
	ReportDir string

	// ReportFile, when set, is overwritten with the report of every run.
	ReportFile string
}

// Outcome is everything a caller may want to know about one execution.
type Outcome struct {
	RunID   string
	Result  *coordinator.Result
	Report  *delivery.Report
	Context pipeline.StructuredContext
}

// Service executes requirements end to end.
type Service struct {
	reg    Registry
	opts   ServiceOptions
	logger *logging.Logger
}

func NewService(reg Registry, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{reg: reg, opts: opts, logger: logger}
}

// Execute runs spec through scrape, normalize, coordinate and deliver.
// maxAttempts <= 0 uses the coordinator default. The returned error is the
// coordinator's (or ErrDelivery); the outcome is non-nil in every case.
func (s *Service) Execute(ctx context.Context, spec pipeline.RequirementSpec, maxAttempts int) (*Outcome, error) {
	ctx, out := s.begin(ctx)

	normalized, err := s.Start(ctx, spec)
	if err != nil {
		out.Report, _ = s.finish(ctx, out, spec, nil, err)
		return out, err
	}
	spec = normalized

	sc, err := s.PrepareContext(ctx, spec)
	if err != nil {
		out.Report, _ = s.finish(ctx, out, spec, nil, err)
		return out, err
	}
	return s.complete(ctx, out, spec, sc, maxAttempts)
}

// Start validates spec and announces the run. The run ID is taken from ctx.
func (s *Service) Start(ctx context.Context, spec pipeline.RequirementSpec) (pipeline.RequirementSpec, error) {
	normalized, err := pipeline.NewRequirementSpec(spec)
	if err != nil {
		return pipeline.RequirementSpec{}, fmt.Errorf("%w: %v", coordinator.ErrInvalidInput, err)
	}
	s.reg.Publisher().Publish(ctx, events.Event{
		RunID: logging.RunIDFromContext(ctx),
		Kind:  events.KindStarted,
		Title: normalized.Title,
	})
	s.logger.Info(ctx, "execution started",
		zap.String("title", normalized.Title),
		zap.Int("sources", len(normalized.Sources)),
	)
	return normalized, nil
}

// Complete runs the coordinator on an already prepared context, then delivers
// and reports like Execute.
func (s *Service) Complete(ctx context.Context, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, maxAttempts int) (*Outcome, error) {
	ctx, out := s.begin(ctx)
	return s.complete(ctx, out, spec, sc, maxAttempts)
}

// begin ensures ctx carries a run ID.
func (s *Service) begin(ctx context.Context) (context.Context, *Outcome) {
	runID := logging.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}
	return logging.WithRunID(ctx, runID), &Outcome{RunID: runID}
}

func (s *Service) complete(ctx context.Context, out *Outcome, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, maxAttempts int) (*Outcome, error) {
	out.Context = sc
	res, err := s.Generate(ctx, spec, sc, maxAttempts)
	out.Result = res
	report, derr := s.finish(ctx, out, spec, res, err)
	out.Report = report
	if err == nil {
		err = derr
	}
	return out, err
}

// PrepareContext scrapes the spec's sources and normalizes them. Only
// cancellation fails it; other problems degrade to an empty context.
func (s *Service) PrepareContext(ctx context.Context, spec pipeline.RequirementSpec) (pipeline.StructuredContext, error) {
	scraper, normalizer := s.reg.Scraper(), s.reg.Normalizer()
	if scraper == nil || normalizer == nil || len(spec.Sources) == 0 {
		return pipeline.EmptyContext(), ctx.Err()
	}

	docs, err := scraper.Scrape(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			return pipeline.StructuredContext{}, ctx.Err()
		}
		s.logger.Warn(ctx, "scraping failed, continuing without context", zap.Error(err))
		return pipeline.EmptyContext(), nil
	}

	sc, err := normalizer.Normalize(ctx, docs)
	if err != nil {
		if ctx.Err() != nil {
			return pipeline.StructuredContext{}, ctx.Err()
		}
		s.logger.Warn(ctx, "normalization failed, continuing without context", zap.Error(err))
		return pipeline.EmptyContext(), nil
	}

	s.logger.Info(ctx, "context prepared",
		zap.Int("documents", len(docs)),
		zap.Int("records", sc.Len()),
	)
	return sc, nil
}

// Generate runs the coordinator with an already prepared context.
func (s *Service) Generate(ctx context.Context, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, maxAttempts int) (*coordinator.Result, error) {
	coord := s.reg.Coordinator()
	if maxAttempts <= 0 {
		maxAttempts = coord.MaxAttempts()
	}
	return coord.RunN(ctx, spec, sc, maxAttempts)
}

// finish delivers an accepted artifact, writes the report and publishes the
// completion event.
func (s *Service) finish(ctx context.Context, out *Outcome, spec pipeline.RequirementSpec, res *coordinator.Result, runErr error) (*delivery.Report, error) {
	report := delivery.NewReport(out.RunID, spec, res, runErr)

	var deliveryErr error
	if res.Accepted() && s.reg.Writer() != nil {
		// Delivery must finish even if the caller gave up after acceptance.
		written, err := s.reg.Writer().Write(context.WithoutCancel(ctx), out.RunID, res.Artifact)
		report.Written = written
		if err != nil {
			deliveryErr = fmt.Errorf("%w: %w", ErrDelivery, err)
			report.Error = deliveryErr.Error()
			s.logger.Error(ctx, "failed to deliver artifact", zap.Error(err))
		}
	}

	if path := s.reportPath(out.RunID); path != "" {
		if err := delivery.WriteReport(path, report); err != nil {
			s.logger.Warn(ctx, "failed to write report", zap.String("path", path), zap.Error(err))
		}
	}

	s.reg.Publisher().Publish(ctx, events.Event{
		RunID:    out.RunID,
		Kind:     events.KindCompleted,
		Status:   report.Status,
		Attempts: len(report.Attempts),
		Error:    report.Error,
	})
	s.logger.Info(ctx, "execution finished",
		zap.String("status", report.Status),
		zap.Int("attempts", len(report.Attempts)),
		zap.Int("written", len(report.Written)),
	)
	return report, deliveryErr
}

func (s *Service) reportPath(runID string) string {
	switch {
	case s.opts.ReportFile != "":
		return s.opts.ReportFile
	case s.opts.ReportDir != "":
		return filepath.Join(s.opts.ReportDir, runID+".json")
	default:
		return ""
	}
}
