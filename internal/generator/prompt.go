package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

const systemPrompt = `You are a code generator. Produce complete, compilable source files that implement the requirement.
Reply with a single JSON object and nothing else:
{"files":[{"path":"relative/path.ext","language":"go","content":"..."}]}
Paths are relative and use forward slashes. Never include credentials or secrets in the code.`

// buildPrompt renders the user message. Context records are included in
// order until budget characters are used; budget <= 0 includes none.
func buildPrompt(spec pipeline.RequirementSpec, sc pipeline.StructuredContext, feedback []pipeline.Diagnostic, budget int) string {
	var b strings.Builder

	b.WriteString("# Requirement\n")
	if spec.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", spec.Title)
	}
	if spec.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", spec.Language)
	}
	b.WriteString("\n")
	b.WriteString(spec.Text)
	b.WriteString("\n")

	if len(spec.Fields) > 0 {
		keys := make([]string, 0, len(spec.Fields))
		for k := range spec.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n# Constraints\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, spec.Fields[k])
		}
	}

	if ref := renderContext(sc, budget); ref != "" {
		b.WriteString("\n# Reference material\n")
		b.WriteString(ref)
	}

	if len(feedback) > 0 {
		b.WriteString("\n# Problems in your previous attempt\n")
		b.WriteString("The previous files were rejected. Fix every problem below and return the complete set of files again.\n")
		for _, d := range feedback {
			fmt.Fprintf(&b, "- %s\n", d.String())
		}
	}

	return b.String()
}

func renderContext(sc pipeline.StructuredContext, budget int) string {
	if budget <= 0 || sc.Len() == 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	for i, r := range sc.Records {
		entry := fmt.Sprintf("[%d] %s (chunk %d)\n%s\n\n", i+1, r.Source, r.Chunk, r.Content)
		if used+len(entry) > budget {
			break
		}
		b.WriteString(entry)
		used += len(entry)
	}
	return b.String()
}
