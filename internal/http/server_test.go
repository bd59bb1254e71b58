package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/generator"
	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
	"github.com/fyrsmithlabs/forge/internal/services"
	"github.com/fyrsmithlabs/forge/internal/validator"
)

type runnerFunc func(ctx context.Context, spec pipeline.RequirementSpec, maxAttempts int) (*services.Outcome, error)

func (f runnerFunc) Execute(ctx context.Context, spec pipeline.RequirementSpec, maxAttempts int) (*services.Outcome, error) {
	return f(ctx, spec, maxAttempts)
}

func failingRunner(err error) Runner {
	return runnerFunc(func(_ context.Context, spec pipeline.RequirementSpec, _ int) (*services.Outcome, error) {
		return &services.Outcome{RunID: "r1", Report: delivery.NewReport("r1", spec, nil, err)}, err
	})
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(failingRunner(nil), logging.NewNop(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9090, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(failingRunner(nil), nil, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when runner is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "runner cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, failingRunner(nil))

	rec := serve(server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleRun_Accepted(t *testing.T) {
	server := setupTestServer(t, stubService(t, validator.NewStructure()))

	rec := serve(server, http.MethodPost, "/api/v1/runs", RunRequest{
		Requirement: "print a greeting",
		Title:       "Greeter",
		Language:    "python",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report delivery.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "accepted", report.Status)
	assert.Equal(t, "Greeter", report.Title)
	assert.Len(t, report.Attempts, 1)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "main.py", report.Files[0].Path)
}

func TestHandleRun_Exhausted(t *testing.T) {
	reject := validatorFunc(func(context.Context, *pipeline.CodeArtifact) (pipeline.Verdict, error) {
		return pipeline.Reject(pipeline.Diagnostic{Code: "lint.style", Message: "bad"}), nil
	})
	server := setupTestServer(t, stubService(t, reject))

	rec := serve(server, http.MethodPost, "/api/v1/runs", RunRequest{Requirement: "x", MaxAttempts: 2})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var report delivery.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "exhausted", report.Status)
	assert.Len(t, report.Attempts, 2)
	require.Len(t, report.Attempts[1].Errors, 1)
	assert.Equal(t, "lint.style", report.Attempts[1].Errors[0].Code)
	assert.Empty(t, report.Files)
}

func TestHandleRun_RequestValidation(t *testing.T) {
	called := false
	server := setupTestServer(t, runnerFunc(func(context.Context, pipeline.RequirementSpec, int) (*services.Outcome, error) {
		called = true
		return nil, nil
	}))

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing requirement", RunRequest{Title: "t"}},
		{"bad source url", RunRequest{Requirement: "x", Sources: []string{"not a url"}}},
		{"negative attempts", RunRequest{Requirement: "x", MaxAttempts: -1}},
		{"malformed json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(server, http.MethodPost, "/api/v1/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.False(t, called)
}

func TestHandleRun_PassesRequestThrough(t *testing.T) {
	var gotSpec pipeline.RequirementSpec
	var gotMax int
	server := setupTestServer(t, runnerFunc(func(_ context.Context, spec pipeline.RequirementSpec, maxAttempts int) (*services.Outcome, error) {
		gotSpec, gotMax = spec, maxAttempts
		return &services.Outcome{Report: &delivery.Report{Status: "accepted"}}, nil
	}))

	rec := serve(server, http.MethodPost, "/api/v1/runs", RunRequest{
		Requirement: "fetch a page",
		Language:    "go",
		Sources:     []string{"https://pkg.go.dev/net/http"},
		MaxAttempts: 4,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fetch a page", gotSpec.Text)
	assert.Equal(t, []string{"https://pkg.go.dev/net/http"}, gotSpec.Sources)
	assert.Equal(t, 4, gotMax)
}

func TestHandleRun_RunTimeout(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, spec pipeline.RequirementSpec, _ int) (*services.Outcome, error) {
		<-ctx.Done()
		return &services.Outcome{Report: delivery.NewReport("r", spec, nil, ctx.Err())}, ctx.Err()
	})
	logs := logging.NewTestLogger()
	server, err := NewServer(runner, logs.Logger, nil, &Config{RunTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	rec := serve(server, http.MethodPost, "/api/v1/runs", RunRequest{Requirement: "x"})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	logs.AssertLogged(t, zapcore.WarnLevel, "run did not produce an artifact")
}

func TestHandleRun_NoReport(t *testing.T) {
	server := setupTestServer(t, runnerFunc(func(context.Context, pipeline.RequirementSpec, int) (*services.Outcome, error) {
		return nil, errors.New("registry misconfigured")
	}))

	rec := serve(server, http.MethodPost, "/api/v1/runs", RunRequest{Requirement: "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "registry misconfigured", resp.Error)
}

func TestStatusFor(t *testing.T) {
	timeout := &coordinator.TimeoutError{
		CollaboratorError: coordinator.CollaboratorError{Collaborator: coordinator.CollaboratorGeneration, Err: context.DeadlineExceeded},
		Timeout:           time.Second,
	}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusOK},
		{"invalid input", fmt.Errorf("%w: empty", coordinator.ErrInvalidInput), http.StatusBadRequest},
		{"exhausted", &coordinator.ExhaustedRetriesError{MaxAttempts: 3}, http.StatusUnprocessableEntity},
		{"timeout", timeout, http.StatusGatewayTimeout},
		{"fault", &coordinator.CollaboratorError{Collaborator: coordinator.CollaboratorValidation, Err: errors.New("boom")}, http.StatusBadGateway},
		{"cancelled", &coordinator.CancelledError{Attempt: 2, Err: context.Canceled}, StatusClientClosedRequest},
		{"cancelled while scraping", context.Canceled, StatusClientClosedRequest},
		{"delivery", fmt.Errorf("%w: disk full", services.ErrDelivery), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestServerLifecycle(t *testing.T) {
	server, err := NewServer(failingRunner(nil), logging.NewNop(), nil, &Config{Host: "localhost", Port: 0})
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-errChan:
		assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server := setupTestServer(t, failingRunner(nil))
		rec := serve(server, http.MethodGet, "/health", nil)
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("logs requests", func(t *testing.T) {
		logs := logging.NewTestLogger()
		server, err := NewServer(failingRunner(nil), logs.Logger, nil, nil)
		require.NoError(t, err)

		serve(server, http.MethodGet, "/health", nil)
		logs.AssertLogged(t, zapcore.InfoLevel, "http request")
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server := setupTestServer(t, failingRunner(nil))
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		var rec *httptest.ResponseRecorder
		assert.NotPanics(t, func() {
			rec = serve(server, http.MethodGet, "/panic", nil)
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

type validatorFunc func(ctx context.Context, artifact *pipeline.CodeArtifact) (pipeline.Verdict, error)

func (f validatorFunc) Name() string { return "func" }

func (f validatorFunc) Validate(ctx context.Context, artifact *pipeline.CodeArtifact) (pipeline.Verdict, error) {
	return f(ctx, artifact)
}

// stubService runs the stub generator against val without writing files.
func stubService(t *testing.T, val pipeline.Validator) *services.Service {
	t.Helper()
	coord, err := coordinator.New(generator.NewStub(), val)
	require.NoError(t, err)
	return services.NewService(services.NewRegistry(services.Options{Coordinator: coord}), services.ServiceOptions{})
}

func setupTestServer(t *testing.T, runner Runner) *Server {
	t.Helper()
	server, err := NewServer(runner, logging.NewNop(), nil, nil)
	require.NoError(t, err)
	return server
}

func serve(server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}
