package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/generator"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
	"github.com/fyrsmithlabs/forge/internal/pipeline/pipelinetest"
	"github.com/fyrsmithlabs/forge/internal/services"
	"github.com/fyrsmithlabs/forge/internal/validator"
	"github.com/fyrsmithlabs/forge/internal/workflows"
)

func runWorkflow(t *testing.T, val pipeline.Validator, input workflows.GenerateCodeInput) error {
	t.Helper()
	coord, err := coordinator.New(generator.NewStub(), val, coordinator.WithMaxAttempts(3))
	require.NoError(t, err)
	svc := services.NewService(services.NewRegistry(services.Options{Coordinator: coord}), services.ServiceOptions{})

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(workflows.GenerateCodeWorkflow)
	env.RegisterActivity(workflows.NewActivities(svc, nil))

	env.ExecuteWorkflow(workflows.GenerateCodeWorkflow, input)
	require.True(t, env.IsWorkflowCompleted())
	return env.GetWorkflowError()
}

func TestExitCode_WorkflowRuns(t *testing.T) {
	rejectAll := pipelinetest.ValidatorFunc(func(context.Context, *pipeline.CodeArtifact) (pipeline.Verdict, error) {
		return pipeline.Reject(pipeline.Diagnostic{Code: "lint.style", Message: "rejected"}), nil
	})
	broken := pipelinetest.ValidatorFunc(func(context.Context, *pipeline.CodeArtifact) (pipeline.Verdict, error) {
		return pipeline.Verdict{}, errors.New("linter crashed")
	})

	tests := []struct {
		name  string
		val   pipeline.Validator
		input workflows.GenerateCodeInput
		want  int
	}{
		{
			name:  "accepted",
			val:   validator.NewStructure(),
			input: workflows.GenerateCodeInput{Spec: pipeline.RequirementSpec{Text: "greet"}},
			want:  exitOK,
		},
		{
			name:  "exhausted",
			val:   rejectAll,
			input: workflows.GenerateCodeInput{Spec: pipeline.RequirementSpec{Text: "greet"}, MaxAttempts: 2},
			want:  exitExhausted,
		},
		{
			name:  "validator fault",
			val:   broken,
			input: workflows.GenerateCodeInput{Spec: pipeline.RequirementSpec{Text: "greet"}},
			want:  exitFault,
		},
		{
			name:  "invalid input",
			val:   validator.NewStructure(),
			input: workflows.GenerateCodeInput{Spec: pipeline.RequirementSpec{Text: "  "}},
			want:  exitInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runWorkflow(t, tt.val, tt.input)
			assert.Equal(t, tt.want, exitCode(err), "%v", err)
		})
	}
}

func TestExitCode_ApplicationErrorTypes(t *testing.T) {
	tests := []struct {
		errType string
		want    int
	}{
		{workflows.ErrTypeInvalidInput, exitInvalid},
		{workflows.ErrTypeExhausted, exitExhausted},
		{workflows.ErrTypeFault, exitFault},
		{workflows.ErrTypeTimeout, exitFault},
		{workflows.ErrTypeCancelled, exitCancelled},
		{workflows.ErrTypeDelivery, exitDelivery},
		{workflows.ErrTypeInternal, exitError},
	}
	for _, tt := range tests {
		err := temporal.NewNonRetryableApplicationError("run failed", tt.errType, nil)
		assert.Equal(t, tt.want, exitCode(err), tt.errType)
	}
}
