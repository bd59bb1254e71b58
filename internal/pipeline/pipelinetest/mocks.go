// Package pipelinetest provides collaborator doubles for tests.
package pipelinetest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// MockGenerator is a testify mock of pipeline.Generator.
type MockGenerator struct {
	mock.Mock
	name string
}

func NewMockGenerator(name string) *MockGenerator {
	return &MockGenerator{name: name}
}

func (m *MockGenerator) Name() string {
	return m.name
}

func (m *MockGenerator) Generate(ctx context.Context, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, feedback []pipeline.Diagnostic) (*pipeline.CodeArtifact, error) {
	args := m.Called(ctx, spec, sc, feedback)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.CodeArtifact), args.Error(1)
}

// FeedbackAt returns the feedback passed to the i-th Generate call.
func (m *MockGenerator) FeedbackAt(i int) []pipeline.Diagnostic {
	calls := m.callsTo("Generate")
	if i >= len(calls) {
		return nil
	}
	fb, _ := calls[i].Arguments.Get(3).([]pipeline.Diagnostic)
	return fb
}

func (m *MockGenerator) callsTo(method string) []mock.Call {
	var out []mock.Call
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// MockValidator is a testify mock of pipeline.Validator.
type MockValidator struct {
	mock.Mock
	name string
}

func NewMockValidator(name string) *MockValidator {
	return &MockValidator{name: name}
}

func (m *MockValidator) Name() string {
	return m.name
}

func (m *MockValidator) Validate(ctx context.Context, artifact *pipeline.CodeArtifact) (pipeline.Verdict, error) {
	args := m.Called(ctx, artifact)
	return args.Get(0).(pipeline.Verdict), args.Error(1)
}

// MockScraper is a testify mock of pipeline.Scraper.
type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Scrape(ctx context.Context, spec pipeline.RequirementSpec) ([]pipeline.Document, error) {
	args := m.Called(ctx, spec)
	docs, _ := args.Get(0).([]pipeline.Document)
	return docs, args.Error(1)
}

// MockNormalizer is a testify mock of pipeline.Normalizer.
type MockNormalizer struct {
	mock.Mock
}

func (m *MockNormalizer) Normalize(ctx context.Context, docs []pipeline.Document) (pipeline.StructuredContext, error) {
	args := m.Called(ctx, docs)
	return args.Get(0).(pipeline.StructuredContext), args.Error(1)
}
