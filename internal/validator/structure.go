package validator

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

const (
	CodeNoUnits       = "structure.no_units"
	CodeInvalidPath   = "structure.invalid_path"
	CodeDuplicatePath = "structure.duplicate_path"
	CodeEmptyContent  = "structure.empty_content"
)

// StructureValidator checks the shape of an artifact: at least one unit,
// clean relative paths without duplicates, and non-empty content.
type StructureValidator struct{}

func NewStructure() *StructureValidator { return &StructureValidator{} }

func (StructureValidator) Name() string { return "structure" }

func (StructureValidator) Validate(_ context.Context, artifact *pipeline.CodeArtifact) (pipeline.Verdict, error) {
	if artifact == nil || len(artifact.Units) == 0 {
		return pipeline.Reject(pipeline.Diagnostic{
			Code:    CodeNoUnits,
			Message: "artifact contains no source files",
		}), nil
	}

	var diags []pipeline.Diagnostic
	seen := make(map[string]bool, len(artifact.Units))
	for i, u := range artifact.Units {
		loc := &pipeline.Location{Path: u.Path}
		if msg := checkPath(u.Path); msg != "" {
			diags = append(diags, pipeline.Diagnostic{
				Code:     CodeInvalidPath,
				Message:  fmt.Sprintf("file %d: %s", i+1, msg),
				Location: loc,
			})
			continue
		}
		if seen[u.Path] {
			diags = append(diags, pipeline.Diagnostic{
				Code:     CodeDuplicatePath,
				Message:  "path appears more than once",
				Location: loc,
			})
			continue
		}
		seen[u.Path] = true
		if strings.TrimSpace(u.Content) == "" {
			diags = append(diags, pipeline.Diagnostic{
				Code:     CodeEmptyContent,
				Message:  "file is empty",
				Location: loc,
			})
		}
	}
	return pipeline.VerdictFrom(diags), nil
}

// checkPath returns a description of what is wrong with p, or "".
func checkPath(p string) string {
	switch {
	case strings.TrimSpace(p) == "":
		return "path is empty"
	case strings.Contains(p, "\\"):
		return fmt.Sprintf("path %q must use forward slashes", p)
	case path.IsAbs(p):
		return fmt.Sprintf("path %q must be relative", p)
	case path.Clean(p) != p:
		return fmt.Sprintf("path %q is not clean (want %q)", p, path.Clean(p))
	case p == ".." || strings.HasPrefix(p, "../"):
		return fmt.Sprintf("path %q escapes the output directory", p)
	}
	return ""
}
