package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// Languages offered by the interactive form.
var Languages = []string{"go", "python", "javascript", "typescript", "rust", "bash"}

// FormAnswers holds the values bound to the interactive form.
type FormAnswers struct {
	Title    string
	Language string
	Text     string
	Sources  string
}

// FormCollector asks for the requirement in an interactive terminal form.
type FormCollector struct {
	// Base supplies defaults, such as a language passed on the command line.
	Base pipeline.RequirementSpec

	// Accessible switches to line-based prompts for screen readers.
	Accessible bool

	run func(ctx context.Context, form *huh.Form, answers *FormAnswers) error
}

// NewFormCollector returns a collector that runs a huh form on the terminal.
func NewFormCollector(base pipeline.RequirementSpec, accessible bool) *FormCollector {
	return &FormCollector{
		Base:       base,
		Accessible: accessible,
		run: func(ctx context.Context, form *huh.Form, _ *FormAnswers) error {
			return form.RunWithContext(ctx)
		},
	}
}

func (c *FormCollector) Collect(ctx context.Context) (pipeline.RequirementSpec, error) {
	answers := &FormAnswers{
		Title:    c.Base.Title,
		Language: c.Base.Language,
		Text:     c.Base.Text,
		Sources:  strings.Join(c.Base.Sources, "\n"),
	}
	if answers.Language == "" {
		answers.Language = Languages[0]
	}

	form := buildForm(answers).WithAccessible(c.Accessible)
	if err := c.run(ctx, form, answers); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return pipeline.RequirementSpec{}, fmt.Errorf("requirement form aborted: %w", context.Canceled)
		}
		return pipeline.RequirementSpec{}, fmt.Errorf("requirement form: %w", err)
	}

	spec := c.Base.Clone()
	spec.Title = answers.Title
	spec.Language = answers.Language
	spec.Text = answers.Text
	spec.Sources = splitSources(answers.Sources)
	return pipeline.NewRequirementSpec(spec)
}

func buildForm(a *FormAnswers) *huh.Form {
	options := huh.NewOptions(Languages...)
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Description("Short name for the generated project.").
				CharLimit(200).
				Value(&a.Title),
			huh.NewSelect[string]().
				Title("Language").
				Options(options...).
				Value(&a.Language),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Requirement").
				Description("Describe what the code should do.").
				CharLimit(MaxRequirementBytes).
				Validate(validateRequirement).
				Value(&a.Text),
			huh.NewText().
				Title("Reference URLs").
				Description("Optional. One URL per line; pages are fetched as context.").
				Validate(validateSources).
				Value(&a.Sources),
		),
	)
}

func validateRequirement(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("requirement cannot be empty")
	}
	return nil
}

func validateSources(s string) error {
	for _, src := range splitSources(s) {
		u, err := url.Parse(src)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("not an http(s) URL: %q", src)
		}
	}
	return nil
}

func splitSources(s string) []string {
	var out []string
	for _, line := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == ',' }) {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
