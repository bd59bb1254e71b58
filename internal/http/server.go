// Package http exposes forge runs over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
	"github.com/fyrsmithlabs/forge/internal/services"
	"github.com/fyrsmithlabs/forge/internal/telemetry"
)

// StatusClientClosedRequest is returned when a run was cancelled.
const StatusClientClosedRequest = 499

// Runner executes one requirement end to end. *services.Service implements it.
type Runner interface {
	Execute(ctx context.Context, spec pipeline.RequirementSpec, maxAttempts int) (*services.Outcome, error)
}

// Server provides HTTP endpoints for forge.
type Server struct {
	echo   *echo.Echo
	runner Runner
	logger *logging.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RunTimeout bounds a single POST /api/v1/runs. Zero means no bound
	// beyond the client connection.
	RunTimeout time.Duration
}

// NewServer creates a new HTTP server. tel may be nil, in which case
// /metrics serves an empty registry.
func NewServer(runner Runner, logger *logging.Logger, tel *telemetry.Telemetry, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New(validator.WithRequiredStructEnabled())}

	metrics := NewHTTPMetrics(tel.Meter(httpInstrumentationName), logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:   e,
		runner: runner,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes(tel)

	return s, nil
}

func (s *Server) registerRoutes(tel *telemetry.Telemetry) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(tel.MetricsHandler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.handleRun)
}

// requestLogger logs every request and puts its request ID in the context.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	}
}

type requestValidator struct {
	v *validator.Validate
}

func (r *requestValidator) Validate(i interface{}) error {
	return r.v.Struct(i)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleRun executes a requirement synchronously and returns its report.
func (s *Server) handleRun(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid run request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	ctx := c.Request().Context()
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	out, err := s.runner.Execute(ctx, req.Spec(), req.MaxAttempts)
	code := StatusFor(err)
	if err != nil {
		s.logger.Warn(ctx, "run did not produce an artifact",
			zap.Int("status", code),
			zap.Error(err),
		)
	}
	if out == nil || out.Report == nil {
		return c.JSON(code, ErrorResponse{Error: errorText(err)})
	}
	return c.JSON(code, out.Report)
}

// StatusFor maps a run error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, coordinator.ErrInvalidInput):
		return http.StatusBadRequest
	case coordinator.IsExhausted(err):
		return http.StatusUnprocessableEntity
	case coordinator.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case coordinator.IsCollaboratorFault(err):
		return http.StatusBadGateway
	case coordinator.IsCancelled(err), errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
