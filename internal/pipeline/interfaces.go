package pipeline

import (
	"context"
	"fmt"
)

// Generator produces a code artifact for a requirement.
//
// Implementations must accept an empty feedback slice and must not share
// mutable state with the caller. They may be non-deterministic. Internal
// failures are reported as *GenerationError, never as a malformed artifact.
type Generator interface {
	// Name identifies the generator in logs and artifact metadata.
	Name() string

	// Generate produces a new artifact. feedback holds the diagnostics the
	// previous attempt failed with; it is empty on the first attempt.
	Generate(ctx context.Context, spec RequirementSpec, sc StructuredContext, feedback []Diagnostic) (*CodeArtifact, error)
}

// Validator checks an artifact.
//
// An invalid artifact is a normal Verdict. The returned error is reserved for
// the validator itself breaking down. Implementations should be deterministic
// and must never return a valid verdict carrying errors.
type Validator interface {
	// Name identifies the validator in logs and diagnostics.
	Name() string

	// Validate checks artifact and returns the verdict.
	Validate(ctx context.Context, artifact *CodeArtifact) (Verdict, error)
}

// RequirementCollector produces the requirement for a run.
type RequirementCollector interface {
	Collect(ctx context.Context) (RequirementSpec, error)
}

// Scraper fetches external documents relevant to a requirement.
type Scraper interface {
	Scrape(ctx context.Context, spec RequirementSpec) ([]Document, error)
}

// Normalizer converts raw documents into structured context.
type Normalizer interface {
	Normalize(ctx context.Context, docs []Document) (StructuredContext, error)
}

// GenerationError is the distinguishable failure of a Generator.
type GenerationError struct {
	Generator string
	Reason    string
	Err       error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed (%s): %s: %v", e.Generator, e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %s", e.Generator, e.Reason)
}

// Unwrap allows errors.Is and errors.As to see the cause.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError creates a generation error.
func NewGenerationError(generator, reason string, err error) *GenerationError {
	return &GenerationError{Generator: generator, Reason: reason, Err: err}
}
