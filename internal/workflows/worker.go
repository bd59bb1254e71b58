package workflows

import (
	"context"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// DefaultTaskQueue is the queue forge workers poll.
const DefaultTaskQueue = "forge"

// NewWorker registers the workflow and acts on taskQueue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(GenerateCodeWorkflow)
	w.RegisterActivity(acts)
	return w
}

// StartRun submits a run. The workflow ID doubles as the run ID.
func StartRun(ctx context.Context, c client.Client, taskQueue string, input GenerateCodeInput) (client.WorkflowRun, error) {
	return c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "forge-" + uuid.NewString(),
		TaskQueue: taskQueue,
	}, GenerateCodeWorkflow, input)
}
