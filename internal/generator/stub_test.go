package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

func TestStubGenerator(t *testing.T) {
	g := NewStub()
	assert.Equal(t, "stub", g.Name())

	a, err := g.Generate(context.Background(), pipeline.RequirementSpec{Text: "x", Language: "py"}, pipeline.EmptyContext(), nil)
	require.NoError(t, err)
	require.Len(t, a.Units, 1)
	assert.Equal(t, "main.py", a.Units[0].Path)
	assert.Equal(t, "python", a.Units[0].Language)

	a, err = g.Generate(context.Background(), pipeline.RequirementSpec{Text: "x", Language: "cobol"}, pipeline.EmptyContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, "main.go", a.Units[0].Path)
}

func TestStubGenerator_FixedUnitsAreCopied(t *testing.T) {
	g := NewStub(pipeline.SourceUnit{Path: "a.go", Content: "package a"})
	first, err := g.Generate(context.Background(), pipeline.RequirementSpec{Text: "x"}, pipeline.EmptyContext(), nil)
	require.NoError(t, err)
	first.Units[0].Content = "mutated"

	second, err := g.Generate(context.Background(), pipeline.RequirementSpec{Text: "x"}, pipeline.EmptyContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, "package a", second.Units[0].Content)
}

func TestStubGenerator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStub().Generate(ctx, pipeline.RequirementSpec{Text: "x"}, pipeline.EmptyContext(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
