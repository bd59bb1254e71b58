// Package logging provides structured logging for forge.
//
// # Overview
//
// The package wraps Zap with:
//   - A Trace level (-2, below Debug)
//   - Stdout output plus an optional OpenTelemetry bridge
//   - Automatic context fields (trace_id, run.id, attempt, request.id)
//   - Redaction of sensitive keys and value patterns, including per-call fields
//   - Level-aware sampling (errors are never sampled)
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "run started", zap.Int("max_attempts", 3))
//
// Output:
//
//	{"ts":"2025-11-24T10:15:30Z","level":"info","msg":"run started","run.id":"5b0f...","max_attempts":3}
//
// Tests use NewTestLogger, which records entries for assertions.
package logging
