package generator

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

var stubSources = map[string]string{
	"go":         "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hello from forge\")\n}\n",
	"python":     "def main() -> None:\n    print(\"hello from forge\")\n\n\nif __name__ == \"__main__\":\n    main()\n",
	"javascript": "function main() {\n  console.log(\"hello from forge\");\n}\n\nmain();\n",
	"typescript": "function main(): void {\n  console.log(\"hello from forge\");\n}\n\nmain();\n",
	"rust":       "fn main() {\n    println!(\"hello from forge\");\n}\n",
	"bash":       "#!/usr/bin/env bash\nset -euo pipefail\n\necho \"hello from forge\"\n",
}

// StubGenerator returns a fixed program in the requested language. It makes
// no network calls and is used for offline runs and demos.
type StubGenerator struct {
	units []pipeline.SourceUnit
}

// NewStub returns a generator producing units. With no units it renders a
// hello-world program in the spec's language, falling back to Go.
func NewStub(units ...pipeline.SourceUnit) *StubGenerator {
	return &StubGenerator{units: append([]pipeline.SourceUnit(nil), units...)}
}

func (s *StubGenerator) Name() string { return "stub" }

func (s *StubGenerator) Generate(ctx context.Context, spec pipeline.RequirementSpec, _ pipeline.StructuredContext, _ []pipeline.Diagnostic) (*pipeline.CodeArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	units := append([]pipeline.SourceUnit(nil), s.units...)
	if len(units) == 0 {
		lang := pipeline.CanonicalLanguage(spec.Language)
		src, ok := stubSources[lang]
		if !ok {
			lang, src = "go", stubSources["go"]
		}
		units = []pipeline.SourceUnit{{
			Path:     "main" + pipeline.ExtensionFor(lang),
			Language: lang,
			Content:  src,
		}}
	}
	return &pipeline.CodeArtifact{
		Name:  artifactName(spec),
		Units: units,
		Metadata: pipeline.ArtifactMetadata{
			Generator: s.Name(),
			CreatedAt: time.Now().UTC(),
		},
	}, nil
}
