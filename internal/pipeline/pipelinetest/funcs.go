package pipelinetest

import (
	"context"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// GeneratorFunc adapts a function to pipeline.Generator.
type GeneratorFunc func(ctx context.Context, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, feedback []pipeline.Diagnostic) (*pipeline.CodeArtifact, error)

func (f GeneratorFunc) Name() string { return "func-generator" }

func (f GeneratorFunc) Generate(ctx context.Context, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, feedback []pipeline.Diagnostic) (*pipeline.CodeArtifact, error) {
	return f(ctx, spec, sc, feedback)
}

// ValidatorFunc adapts a function to pipeline.Validator.
type ValidatorFunc func(ctx context.Context, artifact *pipeline.CodeArtifact) (pipeline.Verdict, error)

func (f ValidatorFunc) Name() string { return "func-validator" }

func (f ValidatorFunc) Validate(ctx context.Context, artifact *pipeline.CodeArtifact) (pipeline.Verdict, error) {
	return f(ctx, artifact)
}

// Artifact builds a one-unit artifact.
func Artifact(path, content string) *pipeline.CodeArtifact {
	return &pipeline.CodeArtifact{
		Name:  path,
		Units: []pipeline.SourceUnit{{Path: path, Content: content}},
	}
}

// Spec builds a requirement spec or panics.
func Spec(text string) pipeline.RequirementSpec {
	spec, err := pipeline.NewRequirementSpec(pipeline.RequirementSpec{Text: text})
	if err != nil {
		panic(err)
	}
	return spec
}

// Diag builds a diagnostic without a location.
func Diag(code, msg string) pipeline.Diagnostic {
	return pipeline.Diagnostic{Code: code, Message: msg}
}
