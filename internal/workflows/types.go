package workflows

import (
	"time"

	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// Default activity timeouts.
const (
	DefaultPrepareTimeout = 5 * time.Minute
	DefaultRunTimeout     = 30 * time.Minute
	DefaultHeartbeat      = 30 * time.Second
)

// GenerateCodeInput starts one run.
type GenerateCodeInput struct {
	Spec pipeline.RequirementSpec

	// MaxAttempts overrides the worker's coordinator budget when positive.
	MaxAttempts int

	// PrepareTimeout and RunTimeout bound the two activities. Zero uses the
	// defaults.
	PrepareTimeout time.Duration
	RunTimeout     time.Duration
}

// GenerateCodeResult mirrors the coordinator outcome of an accepted run.
// Unsuccessful runs fail the workflow; see ReportFromError.
type GenerateCodeResult struct {
	RunID  string
	Status string
	Report *delivery.Report
}

// PrepareContextInput is the input of Activities.PrepareContext.
type PrepareContextInput struct {
	RunID string
	Spec  pipeline.RequirementSpec
}

// PrepareContextResult carries the normalized spec and its context to the
// coordinator activity.
type PrepareContextResult struct {
	Spec    pipeline.RequirementSpec
	Context pipeline.StructuredContext
}

// RunCoordinatorInput is the input of Activities.RunCoordinator.
type RunCoordinatorInput struct {
	RunID       string
	Spec        pipeline.RequirementSpec
	Context     pipeline.StructuredContext
	MaxAttempts int
}
