package validator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/BurntSushi/toml"
	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// CodeSecretPrefix prefixes the gitleaks rule ID in secret diagnostics.
const CodeSecretPrefix = "secret."

// ErrInvalidAllowlist is returned for malformed allowlist files.
var ErrInvalidAllowlist = errors.New("invalid secrets allowlist")

// Allowlist excludes paths and content patterns from secret detection.
type Allowlist struct {
	Paths   []string `toml:"paths"`
	Regexes []string `toml:"regexes"`
}

// LoadAllowlist reads the [allowlist] table of a gitleaks-style TOML file.
// A missing file yields an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	var file struct {
		Allowlist Allowlist `toml:"allowlist"`
	}
	if path == "" {
		return &Allowlist{}, nil
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowlist, path, err)
	}
	if _, err := file.Allowlist.compile(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowlist, path, err)
	}
	return &file.Allowlist, nil
}

type compiledAllowlist struct {
	paths   []*regexp.Regexp
	regexes []*regexp.Regexp
}

func (a *Allowlist) compile() (*compiledAllowlist, error) {
	out := &compiledAllowlist{}
	if a == nil {
		return out, nil
	}
	for _, p := range a.Paths {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("path pattern %q: %w", p, err)
		}
		out.paths = append(out.paths, re)
	}
	for _, p := range a.Regexes {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("content pattern %q: %w", p, err)
		}
		out.regexes = append(out.regexes, re)
	}
	return out, nil
}

func (c *compiledAllowlist) skipPath(p string) bool {
	for _, re := range c.paths {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// SecretsValidator scans every unit with the gitleaks default ruleset. The
// secret value never appears in a diagnostic.
type SecretsValidator struct {
	mu        sync.Mutex
	detector  *detect.Detector
	allowlist *compiledAllowlist
}

// NewSecrets builds the detector once; loading the default ruleset is costly.
func NewSecrets(allow *Allowlist) (*SecretsValidator, error) {
	compiled, err := allow.compile()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAllowlist, err)
	}
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("load gitleaks rules: %w", err)
	}
	if len(compiled.regexes) > 0 {
		global := &gitleaksconfig.Allowlist{Description: "forge allowlist"}
		for _, re := range compiled.regexes {
			global.Regexes = append(global.Regexes, (*gitleaksregexp.Regexp)(re))
		}
		detector.Config.Allowlists = append(detector.Config.Allowlists, global)
	}
	return &SecretsValidator{detector: detector, allowlist: compiled}, nil
}

func (*SecretsValidator) Name() string { return "secrets" }

func (s *SecretsValidator) Validate(ctx context.Context, artifact *pipeline.CodeArtifact) (pipeline.Verdict, error) {
	if artifact == nil {
		return pipeline.Accept(), nil
	}
	var diags []pipeline.Diagnostic
	for _, u := range artifact.Units {
		if err := ctx.Err(); err != nil {
			return pipeline.Verdict{}, err
		}
		if s.allowlist.skipPath(u.Path) {
			continue
		}
		for _, f := range s.detect(u.Content) {
			diags = append(diags, pipeline.Diagnostic{
				Code:    CodeSecretPrefix + f.RuleID,
				Message: fmt.Sprintf("possible %s committed in source; load it from the environment instead", describe(f.Description, f.RuleID)),
				Location: &pipeline.Location{
					Path:   u.Path,
					Line:   f.StartLine,
					Column: f.StartColumn,
				},
			})
		}
	}
	return pipeline.VerdictFrom(diags), nil
}

type secretFinding struct {
	RuleID      string
	Description string
	StartLine   int
	StartColumn int
}

// detect serializes access to the shared detector.
func (s *SecretsValidator) detect(content string) []secretFinding {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := s.detector.DetectString(content)
	out := make([]secretFinding, 0, len(raw))
	for _, f := range raw {
		out = append(out, secretFinding{
			RuleID:      f.RuleID,
			Description: f.Description,
			StartLine:   f.StartLine,
			StartColumn: f.StartColumn,
		})
	}
	return out
}

func describe(desc, rule string) string {
	if desc != "" {
		return desc
	}
	return rule
}
