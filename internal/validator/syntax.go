package validator

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

const (
	CodeSyntaxError   = "syntax.error"
	CodeSyntaxMissing = "syntax.missing"
)

const (
	maxSyntaxErrorsPerUnit = 20
	maxTreeDepth           = 1000
	maxSnippetLen          = 40
)

// SyntaxValidator parses every unit with tree-sitter and reports ERROR and
// MISSING nodes. Units in unsupported languages are skipped.
type SyntaxValidator struct{}

func NewSyntax() *SyntaxValidator { return &SyntaxValidator{} }

func (SyntaxValidator) Name() string { return "syntax" }

// Supports reports whether language can be checked.
func (SyntaxValidator) Supports(language string) bool {
	return grammar(pipeline.CanonicalLanguage(language)) != nil
}

func (SyntaxValidator) Validate(ctx context.Context, artifact *pipeline.CodeArtifact) (pipeline.Verdict, error) {
	if artifact == nil {
		return pipeline.Accept(), nil
	}
	var diags []pipeline.Diagnostic
	for _, u := range artifact.Units {
		lang := grammar(pipeline.UnitLanguage(u))
		if lang == nil {
			continue
		}
		found, err := parseUnit(ctx, lang, u)
		if err != nil {
			return pipeline.Verdict{}, fmt.Errorf("parse %s: %w", u.Path, err)
		}
		diags = append(diags, found...)
	}
	return pipeline.VerdictFrom(diags), nil
}

func grammar(language string) *sitter.Language {
	switch language {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	case "rust":
		return rust.GetLanguage()
	case "bash":
		return bash.GetLanguage()
	default:
		return nil
	}
}

// parseUnit uses a fresh parser per unit; sitter.Parser is not safe for
// concurrent use.
func parseUnit(ctx context.Context, lang *sitter.Language, u pipeline.SourceUnit) ([]pipeline.Diagnostic, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	src := []byte(u.Content)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var diags []pipeline.Diagnostic
	collectErrors(tree.RootNode(), src, u.Path, 0, &diags)
	return diags, nil
}

func collectErrors(node *sitter.Node, src []byte, path string, depth int, diags *[]pipeline.Diagnostic) {
	if node == nil || depth > maxTreeDepth || len(*diags) >= maxSyntaxErrorsPerUnit {
		return
	}

	if node.IsMissing() || node.IsError() {
		start := node.StartPoint()
		d := pipeline.Diagnostic{
			Code:    CodeSyntaxError,
			Message: "syntax error",
			Location: &pipeline.Location{
				Path:   path,
				Line:   int(start.Row) + 1,
				Column: int(start.Column) + 1,
			},
		}
		if node.IsMissing() {
			d.Code = CodeSyntaxMissing
			d.Message = fmt.Sprintf("missing %s", node.Type())
		} else if snippet := snippetOf(node, src); snippet != "" {
			d.Message = fmt.Sprintf("unexpected %q", snippet)
		}
		*diags = append(*diags, d)
		// Children of an ERROR node describe the same problem.
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectErrors(node.Child(i), src, path, depth+1, diags)
	}
}

func snippetOf(node *sitter.Node, src []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if end > uint32(len(src)) {
		end = uint32(len(src))
	}
	if start >= end {
		return ""
	}
	return truncate(strings.ToValidUTF8(string(src[start:end]), "\uFFFD"), maxSnippetLen)
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
