// Package workflows runs forge as a durable Temporal workflow.
//
// GenerateCodeWorkflow executes two activities: PrepareContext (validate,
// scrape, normalize) and RunCoordinator (generate/validate loop, delivery).
// Activities never retry; the coordinator owns regeneration. A run that
// does not end accepted fails the workflow with a non-retryable application
// error whose details hold the run report.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// GenerateCodeWorkflow turns a requirement into a delivered artifact.
func GenerateCodeWorkflow(ctx workflow.Context, input GenerateCodeInput) (*GenerateCodeResult, error) {
	logger := workflow.GetLogger(ctx)
	runID := workflow.GetInfo(ctx).WorkflowExecution.ID
	logger.Info("Starting code generation", "run_id", runID, "title", input.Spec.Title)

	var a *Activities

	prepareCtx := workflow.WithActivityOptions(ctx, activityOptions(input.PrepareTimeout, DefaultPrepareTimeout))
	var prepared PrepareContextResult
	err := workflow.ExecuteActivity(prepareCtx, a.PrepareContext, PrepareContextInput{
		RunID: runID,
		Spec:  input.Spec,
	}).Get(ctx, &prepared)
	if err != nil {
		logger.Error("Preparing context failed", "error", err)
		return nil, err
	}

	runCtx := workflow.WithActivityOptions(ctx, activityOptions(input.RunTimeout, DefaultRunTimeout))
	var result GenerateCodeResult
	err = workflow.ExecuteActivity(runCtx, a.RunCoordinator, RunCoordinatorInput{
		RunID:       runID,
		Spec:        prepared.Spec,
		Context:     prepared.Context,
		MaxAttempts: input.MaxAttempts,
	}).Get(ctx, &result)
	if err != nil {
		logger.Error("Coordinator run failed", "error", err, "type", ErrorTypeOf(err))
		return nil, err
	}

	logger.Info("Code generation complete", "status", result.Status)
	return &result, nil
}

func activityOptions(timeout, fallback time.Duration) workflow.ActivityOptions {
	if timeout <= 0 {
		timeout = fallback
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    DefaultHeartbeat,
		WaitForCancellation: true,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
}
