package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/services"
)

// execute runs the root command in an isolated home directory.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FORGE_TELEMETRY_ENABLED", "false")
	t.Setenv("FORGE_VALIDATOR_SECRETS", "false")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun_Offline(t *testing.T) {
	outDir := t.TempDir()
	stdout, err := execute(t, "",
		"run", "--offline", "--json",
		"--requirement", "print a greeting",
		"--title", "Greeter",
		"--language", "python",
		"--out", outDir,
	)
	require.NoError(t, err)

	var report delivery.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "accepted", report.Status)
	require.Len(t, report.Written, 1)
	assert.Equal(t, filepath.Join(outDir, "greeter-"+report.RunID, "main.py"), report.Written[0])
	assert.FileExists(t, report.Written[0])
	assert.FileExists(t, filepath.Join(outDir, "reports", report.RunID+".json"))
}

func TestRun_FromStdin(t *testing.T) {
	stdout, err := execute(t, "write a bash script that prints the date\n",
		"run", "--offline", "--file", "-", "--language", "bash", "--out", t.TempDir(),
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "accepted after 1 attempt(s)")
	assert.Contains(t, stdout, "main.sh")
}

func TestRun_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.md")
	require.NoError(t, os.WriteFile(path, []byte("a go program\n"), 0o600))

	stdout, err := execute(t, "", "run", "--offline", "--file", path, "--out", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "main.go")
}

func TestRun_RequiresInput(t *testing.T) {
	_, err := execute(t, "", "run", "--offline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--requirement")
}

func TestRun_EmptyRequirementIsInvalid(t *testing.T) {
	_, err := execute(t, "   \n", "run", "--offline", "--file", "-", "--out", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, exitInvalid, exitCode(err))
}

func TestRun_InvalidSourceIsInvalid(t *testing.T) {
	_, err := execute(t, "", "run", "--offline", "--requirement", "x", "--source", "not a url", "--out", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, coordinator.ErrInvalidInput)
	assert.Equal(t, exitInvalid, exitCode(err))
}

func TestRun_ExclusiveInputs(t *testing.T) {
	_, err := execute(t, "", "run", "--offline", "--requirement", "x", "--file", "req.md")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	stdout, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Version:    dev")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{fmt.Errorf("%w: empty", coordinator.ErrInvalidInput), exitInvalid},
		{&coordinator.ExhaustedRetriesError{MaxAttempts: 3}, exitExhausted},
		{&coordinator.CollaboratorError{Err: errors.New("boom")}, exitFault},
		{&coordinator.CancelledError{Err: context.Canceled}, exitCancelled},
		{fmt.Errorf("%w: disk", services.ErrDelivery), exitDelivery},
		{errors.New("other"), exitError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, nil, false))
	assert.Empty(t, buf.String())

	report := &delivery.Report{
		RunID:    "r1",
		Status:   "exhausted",
		Attempts: []delivery.AttemptSummary{{Index: 1}, {Index: 2}},
		Error:    "exhausted 2 attempt(s)",
	}
	require.NoError(t, printReport(&buf, report, false))
	assert.Contains(t, buf.String(), "run r1: exhausted after 2 attempt(s)")
	assert.Contains(t, buf.String(), "exhausted 2 attempt(s)")
}
