// Forge turns natural-language requirements into validated source code.
//
// Usage:
//
//	# One run from a flag, writing files under ./forge-out
//	forge run --requirement "parse a CSV file and print column totals" --language go
//
//	# Ground generation in documentation pages
//	forge run --file req.md --source https://pkg.go.dev/encoding/csv
//
//	# HTTP API and Temporal worker
//	forge serve
//	forge worker
//
// Configuration is read from ~/.config/forge/config.yaml and FORGE_*
// environment variables. See internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/services"
	"github.com/fyrsmithlabs/forge/internal/workflows"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes reported by forge run.
const (
	exitOK        = 0
	exitError     = 1
	exitExhausted = 2
	exitFault     = 3
	exitInvalid   = 4
	exitDelivery  = 5
	exitCancelled = 130
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	// Cancelling the context stops the coordinator between attempts.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "forge:", err)
	}
	os.Exit(exitCode(err))
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "forge",
		Short: "Generate validated code from requirements",
		Long: `forge turns a natural-language requirement into source code.

A generator drafts the code, validators check it, and rejected drafts are
regenerated with the validators' findings until one is accepted or the
attempt budget runs out.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/forge/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override logging.format (json, console)")

	cmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newWorkerCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "forge by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// exitCode maps a command error to the process exit status. Errors from a
// workflow run arrive as application errors and are mapped by their type.
func exitCode(err error) int {
	switch workflows.ErrorTypeOf(err) {
	case workflows.ErrTypeInvalidInput:
		return exitInvalid
	case workflows.ErrTypeExhausted:
		return exitExhausted
	case workflows.ErrTypeFault, workflows.ErrTypeTimeout:
		return exitFault
	case workflows.ErrTypeCancelled:
		return exitCancelled
	case workflows.ErrTypeDelivery:
		return exitDelivery
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, coordinator.ErrInvalidInput):
		return exitInvalid
	case coordinator.IsExhausted(err):
		return exitExhausted
	case coordinator.IsCollaboratorFault(err):
		return exitFault
	case coordinator.IsCancelled(err), errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, services.ErrDelivery):
		return exitDelivery
	default:
		return exitError
	}
}
