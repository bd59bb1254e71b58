package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/fyrsmithlabs/forge/internal/collector"
	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
	"github.com/fyrsmithlabs/forge/internal/services"
	"github.com/fyrsmithlabs/forge/internal/workflows"
)

type runOptions struct {
	requirement string
	file        string
	interactive bool
	accessible  bool
	title       string
	language    string
	sources     []string
	maxAttempts int
	out         string
	offline     bool
	workflow    bool
	jsonOutput  bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate code for one requirement",
		Long: `Generate code for one requirement and write the accepted files.

The requirement comes from exactly one of --requirement, --file (use "-" for
stdin) or --interactive.

Examples:
  # Inline requirement
  forge run --requirement "a CLI that counts words in stdin" --language go

  # From a file, grounded in documentation
  forge run --file req.md --source https://docs.python.org/3/library/csv.html

  # Without network access, using the built-in stub generator
  forge run --requirement "hello world" --offline --out /tmp/forge`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.requirement, "requirement", "r", "", "requirement text")
	f.StringVarP(&opts.file, "file", "f", "", "read the requirement from a file, or - for stdin")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "ask for the requirement in a terminal form")
	f.BoolVar(&opts.accessible, "accessible", false, "use line-based prompts with --interactive")
	f.StringVar(&opts.title, "title", "", "short title, also used as the output directory name")
	f.StringVarP(&opts.language, "language", "l", "", "target language (go, python, javascript, typescript, rust, bash)")
	f.StringSliceVarP(&opts.sources, "source", "s", nil, "documentation URL to ground generation (repeatable)")
	f.IntVarP(&opts.maxAttempts, "max-attempts", "n", 0, "attempt budget (default coordinator.max_attempts)")
	f.StringVarP(&opts.out, "out", "o", "", "output directory (default delivery.output_dir)")
	f.BoolVar(&opts.offline, "offline", false, "use the stub generator and skip scraping")
	f.BoolVar(&opts.workflow, "workflow", false, "submit the run to a Temporal worker and wait for it")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the run report as JSON")

	cmd.MarkFlagsMutuallyExclusive("requirement", "file", "interactive")
	return cmd
}

func runRun(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	ctx := cmd.Context()

	coll, err := opts.collector(cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := setup(ctx, root)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if opts.out != "" {
		a.cfg.Delivery.OutputDir = opts.out
	}

	spec, err := coll.Collect(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequirement) {
			return fmt.Errorf("%w: %v", coordinator.ErrInvalidInput, err)
		}
		return err
	}

	if opts.workflow {
		return submitRun(cmd, a, spec, opts)
	}

	svc, err := services.Build(ctx, a.cfg, a.logger, a.tel, services.BuildOptions{Offline: opts.offline})
	if err != nil {
		return err
	}
	defer svc.Close()

	out, runErr := svc.Execute(ctx, spec, opts.maxAttempts)
	if err := printReport(cmd.OutOrStdout(), out.Report, opts.jsonOutput); err != nil {
		return err
	}
	return runErr
}

// collector picks the requirement source from the flags.
func (o *runOptions) collector(stdin io.Reader) (pipeline.RequirementCollector, error) {
	base := pipeline.RequirementSpec{
		Title:    o.title,
		Language: o.language,
		Sources:  o.sources,
	}
	switch {
	case o.interactive:
		return collector.NewFormCollector(base, o.accessible), nil
	case o.file == "-":
		return &collector.ReaderCollector{R: stdin, Base: base}, nil
	case o.file != "":
		return &collector.StaticCollector{Base: base, Path: o.file}, nil
	case o.requirement != "":
		base.Text = o.requirement
		return &collector.StaticCollector{Base: base}, nil
	default:
		return nil, errors.New("one of --requirement, --file or --interactive is required")
	}
}

// submitRun executes the requirement on a Temporal worker.
func submitRun(cmd *cobra.Command, a *app, spec pipeline.RequirementSpec, opts *runOptions) error {
	ctx := cmd.Context()
	c, err := client.Dial(client.Options{
		HostPort:  a.cfg.Temporal.HostPort,
		Namespace: a.cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	run, err := workflows.StartRun(ctx, c, a.cfg.Temporal.TaskQueue, workflows.GenerateCodeInput{
		Spec:        spec,
		MaxAttempts: opts.maxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to start workflow: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "submitted workflow %s\n", run.GetID())

	var result workflows.GenerateCodeResult
	if err := run.Get(ctx, &result); err != nil {
		if report, ok := workflows.ReportFromError(err); ok {
			_ = printReport(cmd.OutOrStdout(), report, opts.jsonOutput)
		}
		return err
	}
	return printReport(cmd.OutOrStdout(), result.Report, opts.jsonOutput)
}

func printReport(w io.Writer, report *delivery.Report, asJSON bool) error {
	if report == nil {
		return nil
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "run %s: %s after %d attempt(s)\n", report.RunID, report.Status, len(report.Attempts))
	for _, path := range report.Written {
		fmt.Fprintf(w, "  wrote %s\n", path)
	}
	if len(report.Written) == 0 {
		for _, f := range report.Files {
			fmt.Fprintf(w, "  generated %s\n", f.Path)
		}
	}
	for _, d := range report.FinalErrors {
		fmt.Fprintf(w, "  %s\n", d.String())
	}
	if report.Error != "" && len(report.FinalErrors) == 0 {
		fmt.Fprintf(w, "  %s\n", strings.TrimSpace(report.Error))
	}
	return nil
}
