package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// Report summarizes a run for humans and machines. It is produced for every
// outcome, not only acceptance.
type Report struct {
	RunID       string                `json:"run_id"`
	Title       string                `json:"title,omitempty"`
	Status      string                `json:"status"`
	Error       string                `json:"error,omitempty"`
	Attempts    []AttemptSummary      `json:"attempts"`
	FinalErrors []pipeline.Diagnostic `json:"final_errors,omitempty"`
	Files       []pipeline.SourceUnit `json:"files,omitempty"`
	Written     []string              `json:"written,omitempty"`
	Sources     []string              `json:"sources,omitempty"`
	Generator   string                `json:"generator,omitempty"`
	FinishedAt  time.Time             `json:"finished_at"`
	Fault       *FaultSummary         `json:"fault,omitempty"`
}

// Statuses for runs that never reached a terminal coordinator state.
const (
	StatusInvalid   = "invalid"
	StatusCancelled = string(coordinator.StateCancelled)
	StatusFailed    = "failed"
)

// AttemptSummary is one attempt without its artifact contents.
type AttemptSummary struct {
	Index         int                   `json:"index"`
	Valid         bool                  `json:"valid"`
	Errors        []pipeline.Diagnostic `json:"errors,omitempty"`
	FeedbackCount int                   `json:"feedback_count"`
	Files         []string              `json:"files"`
	DurationMS    int64                 `json:"duration_ms"`
}

// FaultSummary describes a collaborator breakdown.
type FaultSummary struct {
	Collaborator string `json:"collaborator"`
	Name         string `json:"name"`
	Attempt      int    `json:"attempt"`
	Timeout      bool   `json:"timeout"`
}

// NewReport builds a report from a coordinator result and its error.
func NewReport(runID string, spec pipeline.RequirementSpec, res *coordinator.Result, runErr error) *Report {
	r := &Report{
		RunID:      runID,
		Title:      spec.Title,
		Sources:    append([]string(nil), spec.Sources...),
		Attempts:   []AttemptSummary{},
		FinishedAt: time.Now().UTC(),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if res == nil {
		switch {
		case errors.Is(runErr, coordinator.ErrInvalidInput):
			r.Status = StatusInvalid
		case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
			r.Status = StatusCancelled
		default:
			r.Status = StatusFailed
		}
		return r
	}

	r.Status = string(res.Status)
	for _, a := range res.Attempts {
		summary := AttemptSummary{
			Index:         a.Index,
			Valid:         a.Verdict.Valid,
			Errors:        a.Verdict.Errors,
			FeedbackCount: len(a.Feedback),
			DurationMS:    a.Duration.Milliseconds(),
		}
		if a.Artifact != nil {
			summary.Files = a.Artifact.Paths()
			r.Generator = a.Artifact.Metadata.Generator
		}
		r.Attempts = append(r.Attempts, summary)
	}
	if res.Verdict != nil && !res.Verdict.Valid {
		r.FinalErrors = res.Verdict.Errors
	}
	if res.Artifact != nil {
		r.Files = append([]pipeline.SourceUnit(nil), res.Artifact.Units...)
	}

	var cerr *coordinator.CollaboratorError
	if errors.As(runErr, &cerr) {
		r.Fault = &FaultSummary{
			Collaborator: string(cerr.Collaborator),
			Name:         cerr.Name,
			Attempt:      cerr.Attempt,
			Timeout:      coordinator.IsTimeout(runErr),
		}
	}
	return r
}

// WriteReport writes r as indented JSON, replacing any existing file.
func WriteReport(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := writeAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
