package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

var (
	errEmptyReply       = errors.New("empty reply")
	errUnparseableReply = errors.New("reply contains no files")
)

// fencedBlock matches ```lang [path]\n...``` blocks.
var fencedBlock = regexp.MustCompile("(?s)```([A-Za-z0-9_+.#-]*)[ \\t]*([^\\n`]*)\\n(.*?)```")

type reply struct {
	Files []replyFile `json:"files"`
}

type replyFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// parseReply extracts source units from a model reply. It accepts the JSON
// contract, repairs malformed JSON and finally falls back to fenced blocks.
func parseReply(content, language string) ([]pipeline.SourceUnit, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, errEmptyReply
	}

	body := unwrapJSONFence(trimmed)
	if units, ok := decodeFiles(body); ok {
		return units, nil
	}
	if repaired, err := jsonrepair.JSONRepair(body); err == nil {
		if units, ok := decodeFiles(repaired); ok {
			return units, nil
		}
	}
	if units := fencedUnits(trimmed, language); len(units) > 0 {
		return units, nil
	}
	return nil, errUnparseableReply
}

func decodeFiles(s string) ([]pipeline.SourceUnit, bool) {
	var r reply
	if err := json.Unmarshal([]byte(s), &r); err != nil || len(r.Files) == 0 {
		return nil, false
	}
	units := make([]pipeline.SourceUnit, 0, len(r.Files))
	for _, f := range r.Files {
		u := pipeline.SourceUnit{
			Path:     strings.TrimSpace(f.Path),
			Language: pipeline.CanonicalLanguage(f.Language),
			Content:  f.Content,
		}
		if u.Language == "" {
			u.Language = pipeline.LanguageForPath(u.Path)
		}
		units = append(units, u)
	}
	return units, true
}

func unwrapJSONFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return s
	}
	first := strings.IndexByte(s, '\n')
	if first < 0 {
		return s
	}
	tag := strings.TrimSpace(s[3:first])
	if tag != "" && tag != "json" {
		return s
	}
	return strings.TrimSpace(s[first+1 : len(s)-3])
}

func fencedUnits(s, language string) []pipeline.SourceUnit {
	matches := fencedBlock.FindAllStringSubmatch(s, -1)
	var units []pipeline.SourceUnit
	for _, m := range matches {
		tag, hint, body := m[1], strings.TrimSpace(m[2]), m[3]
		if strings.TrimSpace(body) == "" {
			continue
		}
		if tag == "json" {
			if nested, ok := decodeFiles(body); ok {
				units = append(units, nested...)
				continue
			}
		}

		lang := pipeline.CanonicalLanguage(tag)
		if lang == "" {
			lang = pipeline.CanonicalLanguage(language)
		}
		path := hint
		if !looksLikePath(path) {
			path = defaultPath(lang, len(units))
		}
		if lang == "" {
			lang = pipeline.LanguageForPath(path)
		}
		units = append(units, pipeline.SourceUnit{Path: path, Language: lang, Content: body})
	}
	return units
}

func looksLikePath(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t") && (strings.Contains(s, ".") || strings.Contains(s, "/"))
}

func defaultPath(language string, index int) string {
	ext := pipeline.ExtensionFor(language)
	if ext == "" {
		ext = ".txt"
	}
	if index == 0 {
		return "main" + ext
	}
	return fmt.Sprintf("main_%d%s", index+1, ext)
}
