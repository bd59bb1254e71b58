package pipeline

import (
	"path"
	"strings"
)

var extensions = map[string]string{
	"go":         ".go",
	"python":     ".py",
	"javascript": ".js",
	"typescript": ".ts",
	"rust":       ".rs",
	"bash":       ".sh",
	"java":       ".java",
	"c":          ".c",
	"cpp":        ".cpp",
	"ruby":       ".rb",
	"markdown":   ".md",
	"yaml":       ".yaml",
	"json":       ".json",
}

var aliases = map[string]string{
	"golang": "go",
	"py":     "python",
	"js":     "javascript",
	"node":   "javascript",
	"ts":     "typescript",
	"rs":     "rust",
	"sh":     "bash",
	"shell":  "bash",
	"c++":    "cpp",
	"rb":     "ruby",
	"md":     "markdown",
	"yml":    "yaml",
}

// CanonicalLanguage lowercases name and resolves common aliases.
func CanonicalLanguage(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canon, ok := aliases[name]; ok {
		return canon
	}
	return name
}

// ExtensionFor returns the file extension for a language, or "" if unknown.
func ExtensionFor(language string) string {
	return extensions[CanonicalLanguage(language)]
}

// LanguageForPath infers a language from a file extension.
func LanguageForPath(p string) string {
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".tsx":
		return "typescript"
	case ".bash":
		return "bash"
	case ".yml":
		return "yaml"
	case ".hpp", ".cc", ".h":
		return "cpp"
	}
	for lang, e := range extensions {
		if e == ext {
			return lang
		}
	}
	return ""
}

// UnitLanguage returns the declared language of u or infers one from its path.
func UnitLanguage(u SourceUnit) string {
	if u.Language != "" {
		return CanonicalLanguage(u.Language)
	}
	return LanguageForPath(u.Path)
}
