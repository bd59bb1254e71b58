package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequirementSpec(t *testing.T) {
	t.Run("trims and normalizes", func(t *testing.T) {
		spec, err := NewRequirementSpec(RequirementSpec{
			Text:     "  build a url shortener  ",
			Title:    " shortener ",
			Language: " Go ",
		})
		require.NoError(t, err)
		assert.Equal(t, "build a url shortener", spec.Text)
		assert.Equal(t, "shortener", spec.Title)
		assert.Equal(t, "go", spec.Language)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		_, err := NewRequirementSpec(RequirementSpec{Text: "   \n\t"})
		assert.ErrorIs(t, err, ErrEmptyRequirement)
		assert.ErrorIs(t, err, ErrInvalidRequirement)
	})

	t.Run("rejects malformed source urls", func(t *testing.T) {
		_, err := NewRequirementSpec(RequirementSpec{
			Text:    "x",
			Sources: []string{"not a url"},
		})
		require.ErrorIs(t, err, ErrInvalidRequirement)
		assert.NotErrorIs(t, err, ErrEmptyRequirement)
		assert.Contains(t, err.Error(), "invalid requirement")
	})

	t.Run("copies mutable fields", func(t *testing.T) {
		sources := []string{"https://example.com/docs"}
		fields := map[string]string{"framework": "echo"}

		spec, err := NewRequirementSpec(RequirementSpec{Text: "x", Sources: sources, Fields: fields})
		require.NoError(t, err)

		sources[0] = "https://changed.example.com"
		fields["framework"] = "gin"

		assert.Equal(t, "https://example.com/docs", spec.Sources[0])
		assert.Equal(t, "echo", spec.Fields["framework"])
	})
}

func TestRequirementSpec_Clone(t *testing.T) {
	orig := RequirementSpec{Text: "x", Fields: map[string]string{"a": "1"}}
	clone := orig.Clone()
	clone.Fields["a"] = "2"

	assert.Equal(t, "1", orig.Fields["a"])
	assert.False(t, orig.IsEmpty())
	assert.True(t, RequirementSpec{}.IsEmpty())
}

func TestNewStructuredContext(t *testing.T) {
	t.Run("accepts traceable records", func(t *testing.T) {
		sc, err := NewStructuredContext([]Record{
			{ID: "1", Source: "https://a.example", Content: "alpha"},
			{ID: "2", Source: "https://b.example", Content: "beta"},
			{ID: "3", Source: "https://a.example", Content: "gamma"},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, sc.Len())
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, sc.Sources())
	})

	t.Run("rejects records without source", func(t *testing.T) {
		_, err := NewStructuredContext([]Record{{ID: "1", Content: "orphan"}})
		assert.True(t, errors.Is(err, ErrUntraceableRecord))
	})

	t.Run("empty input yields empty non-nil context", func(t *testing.T) {
		sc, err := NewStructuredContext(nil)
		require.NoError(t, err)
		assert.NotNil(t, sc.Records)
		assert.Zero(t, sc.Len())
		assert.NotNil(t, EmptyContext().Records)
	})
}

func TestVerdict(t *testing.T) {
	assert.True(t, Accept().Valid)
	assert.NoError(t, Accept().Check())

	rejected := Reject(Diagnostic{Code: "E1", Message: "boom"})
	assert.False(t, rejected.Valid)
	assert.Len(t, rejected.Errors, 1)
	assert.NoError(t, rejected.Check())

	assert.True(t, VerdictFrom(nil).Valid)
	assert.False(t, VerdictFrom([]Diagnostic{{Code: "E"}}).Valid)

	broken := Verdict{Valid: true, Errors: []Diagnostic{{Code: "E"}}}
	assert.Error(t, broken.Check())
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{Code: "syntax", Message: "unexpected }", Location: &Location{Path: "main.go", Line: 3, Column: 7}}
	assert.Equal(t, "main.go:3:7 [syntax] unexpected }", d.String())

	d = Diagnostic{Code: "structure.empty", Message: "no files"}
	assert.Equal(t, "[structure.empty] no files", d.String())

	assert.Equal(t, "a.go:2", (&Location{Path: "a.go", Line: 2}).String())
}

func TestCodeArtifact_Lookup(t *testing.T) {
	a := &CodeArtifact{Units: []SourceUnit{{Path: "a.go"}, {Path: "b.go", Content: "package b"}}}

	u, ok := a.Unit("b.go")
	require.True(t, ok)
	assert.Equal(t, "package b", u.Content)

	_, ok = a.Unit("c.go")
	assert.False(t, ok)
	assert.Equal(t, []string{"a.go", "b.go"}, a.Paths())
}

func TestGenerationError(t *testing.T) {
	cause := errors.New("rate limited")
	err := NewGenerationError("openai", "api call failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "openai")
	assert.Contains(t, err.Error(), "api call failed")

	var genErr *GenerationError
	assert.True(t, errors.As(error(err), &genErr))
}

func TestCodeArtifact_Clone(t *testing.T) {
	orig := &CodeArtifact{
		Name:  "svc",
		Units: []SourceUnit{{Path: "main.go", Content: "package main"}},
		Metadata: ArtifactMetadata{
			Feedback: []Diagnostic{{Code: "syntax", Location: &Location{Path: "main.go", Line: 1}}},
		},
	}

	clone := orig.Clone()
	clone.Units[0].Content = "changed"
	clone.Metadata.Feedback[0].Location.Line = 9

	assert.Equal(t, "package main", orig.Units[0].Content)
	assert.Equal(t, 1, orig.Metadata.Feedback[0].Location.Line)
	assert.Nil(t, (*CodeArtifact)(nil).Clone())
}
