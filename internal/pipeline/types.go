package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidRequirement is wrapped by every requirement validation failure.
	ErrInvalidRequirement = errors.New("invalid requirement")

	// ErrEmptyRequirement is returned when a requirement has no text.
	ErrEmptyRequirement = fmt.Errorf("%w: text cannot be empty", ErrInvalidRequirement)

	// ErrUntraceableRecord is returned when a context record has no source.
	ErrUntraceableRecord = errors.New("context record must carry a source")
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// RequirementSpec is the normalized description of what to build.
//
// Specs are values: NewRequirementSpec and Clone deep-copy the mutable parts so
// a spec handed to a collaborator can never be changed behind the caller's back.
type RequirementSpec struct {
	// Text is the free-form requirement. Required.
	Text string `json:"text" validate:"required"`

	// Title is a short human-readable label.
	Title string `json:"title,omitempty" validate:"max=200"`

	// Language is the preferred target language (e.g. "go", "python").
	Language string `json:"language,omitempty" validate:"max=32"`

	// Sources are URLs used to ground generation.
	Sources []string `json:"sources,omitempty" validate:"dive,url"`

	// Fields holds optional structured attributes.
	Fields map[string]string `json:"fields,omitempty"`
}

// NewRequirementSpec validates and copies a requirement.
func NewRequirementSpec(spec RequirementSpec) (RequirementSpec, error) {
	spec.Text = strings.TrimSpace(spec.Text)
	spec.Title = strings.TrimSpace(spec.Title)
	spec.Language = strings.ToLower(strings.TrimSpace(spec.Language))
	if spec.Text == "" {
		return RequirementSpec{}, ErrEmptyRequirement
	}
	if err := structValidator().Struct(spec); err != nil {
		return RequirementSpec{}, fmt.Errorf("%w: %w", ErrInvalidRequirement, err)
	}
	return spec.Clone(), nil
}

// IsEmpty reports whether the spec carries no requirement text.
func (s RequirementSpec) IsEmpty() bool {
	return strings.TrimSpace(s.Text) == ""
}

// Clone returns a deep copy of the spec.
func (s RequirementSpec) Clone() RequirementSpec {
	out := s
	if s.Sources != nil {
		out.Sources = append([]string(nil), s.Sources...)
	}
	if s.Fields != nil {
		out.Fields = make(map[string]string, len(s.Fields))
		for k, v := range s.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Document is a raw page fetched by a Scraper.
type Document struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Record is one normalized unit of external knowledge.
type Record struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Chunk   int    `json:"chunk"`
}

// StructuredContext is the normalized knowledge used to ground generation.
// It may be empty but is never nil-valued in practice: the zero value is an
// empty context.
type StructuredContext struct {
	Records []Record `json:"records"`
}

// NewStructuredContext builds a context, rejecting records without a source.
func NewStructuredContext(records []Record) (StructuredContext, error) {
	out := make([]Record, 0, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.Source) == "" {
			return StructuredContext{}, fmt.Errorf("record %d (%q): %w", i, r.ID, ErrUntraceableRecord)
		}
		out = append(out, r)
	}
	return StructuredContext{Records: out}, nil
}

// EmptyContext returns a context with no records.
func EmptyContext() StructuredContext {
	return StructuredContext{Records: []Record{}}
}

// Len returns the number of records.
func (c StructuredContext) Len() int {
	return len(c.Records)
}

// Sources returns the distinct sources in first-seen order.
func (c StructuredContext) Sources() []string {
	seen := make(map[string]bool, len(c.Records))
	var out []string
	for _, r := range c.Records {
		if !seen[r.Source] {
			seen[r.Source] = true
			out = append(out, r.Source)
		}
	}
	return out
}

// Clone returns a copy whose record slice is independent of c.
func (c StructuredContext) Clone() StructuredContext {
	return StructuredContext{Records: append([]Record{}, c.Records...)}
}

// SourceUnit is one generated file.
type SourceUnit struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

// ArtifactMetadata describes how an artifact was produced.
type ArtifactMetadata struct {
	Attempt   int          `json:"attempt"`
	Feedback  []Diagnostic `json:"feedback,omitempty"`
	Generator string       `json:"generator,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// CodeArtifact is the generated output of one attempt.
type CodeArtifact struct {
	Name     string           `json:"name"`
	Units    []SourceUnit     `json:"units"`
	Metadata ArtifactMetadata `json:"metadata"`
}

// Clone returns a deep copy of the artifact.
func (a *CodeArtifact) Clone() *CodeArtifact {
	if a == nil {
		return nil
	}
	out := *a
	out.Units = append([]SourceUnit(nil), a.Units...)
	out.Metadata.Feedback = cloneDiagnostics(a.Metadata.Feedback)
	return &out
}

// Unit returns the unit at path, if present.
func (a *CodeArtifact) Unit(path string) (SourceUnit, bool) {
	for _, u := range a.Units {
		if u.Path == path {
			return u, true
		}
	}
	return SourceUnit{}, false
}

// Paths returns the unit paths in artifact order.
func (a *CodeArtifact) Paths() []string {
	paths := make([]string, 0, len(a.Units))
	for _, u := range a.Units {
		paths = append(paths, u.Path)
	}
	return paths
}

// Location points at a position inside an artifact.
type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// String renders the location as path:line:col.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	switch {
	case l.Line > 0 && l.Column > 0:
		return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Column)
	case l.Line > 0:
		return fmt.Sprintf("%s:%d", l.Path, l.Line)
	default:
		return l.Path
	}
}

// Diagnostic is a single validation finding. It is feedback for the next
// generation attempt, not a Go error.
type Diagnostic struct {
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Location *Location `json:"location,omitempty"`
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	if loc := d.Location.String(); loc != "" {
		return fmt.Sprintf("%s [%s] %s", loc, d.Code, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}

// Verdict is the structured result of validating an artifact.
type Verdict struct {
	Valid  bool         `json:"valid"`
	Errors []Diagnostic `json:"errors,omitempty"`
}

// Accept returns a valid verdict.
func Accept() Verdict {
	return Verdict{Valid: true}
}

// Reject returns an invalid verdict carrying diags.
func Reject(diags ...Diagnostic) Verdict {
	return Verdict{Valid: false, Errors: append([]Diagnostic(nil), diags...)}
}

// VerdictFrom returns Accept when diags is empty and Reject otherwise.
func VerdictFrom(diags []Diagnostic) Verdict {
	if len(diags) == 0 {
		return Accept()
	}
	return Reject(diags...)
}

// Check reports a verdict that claims validity while carrying errors.
func (v Verdict) Check() error {
	if v.Valid && len(v.Errors) > 0 {
		return fmt.Errorf("verdict is valid but carries %d error(s)", len(v.Errors))
	}
	return nil
}

// AttemptRecord is one append-only entry of a run's audit trail.
type AttemptRecord struct {
	Index     int           `json:"index"`
	Feedback  []Diagnostic  `json:"feedback,omitempty"`
	Artifact  *CodeArtifact `json:"artifact"`
	Verdict   Verdict       `json:"verdict"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func cloneDiagnostics(in []Diagnostic) []Diagnostic {
	if in == nil {
		return nil
	}
	out := make([]Diagnostic, len(in))
	for i, d := range in {
		if d.Location != nil {
			loc := *d.Location
			d.Location = &loc
		}
		out[i] = d
	}
	return out
}
