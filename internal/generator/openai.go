// Package generator implements code generation backends.
package generator

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// Config configures an OpenAI-compatible backend.
type Config struct {
	Model         string
	BaseURL       string
	APIKey        string
	Temperature   float32
	MaxTokens     int
	ContextBudget int
}

// OpenAIGenerator generates artifacts through an OpenAI-compatible chat
// completion API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	budget      int
	limiter     *rate.Limiter
	logger      *logging.Logger
	tracer      trace.Tracer
}

// Option configures an OpenAIGenerator.
type Option func(*OpenAIGenerator)

// WithLimiter shares a limiter between generators so that backend calls are
// paced across concurrent runs.
func WithLimiter(l *rate.Limiter) Option {
	return func(g *OpenAIGenerator) {
		if l != nil {
			g.limiter = l
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(g *OpenAIGenerator) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *OpenAIGenerator) {
		if t != nil {
			g.tracer = t
		}
	}
}

// NewLimiter builds the backend limiter from requests per second and burst.
// A non-positive rate disables pacing.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// NewOpenAI creates a generator. An API key is required unless BaseURL points
// at a self-hosted endpoint.
func NewOpenAI(cfg Config, httpClient *http.Client, opts ...Option) (*OpenAIGenerator, error) {
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("api key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	g := &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		budget:      cfg.ContextBudget,
		limiter:     NewLimiter(1, 1),
		logger:      logging.NewNop(),
		tracer:      noop.NewTracerProvider().Tracer("generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *OpenAIGenerator) Name() string {
	return "openai:" + g.model
}

// Generate asks the model for the files implementing spec.
func (g *OpenAIGenerator) Generate(ctx context.Context, spec pipeline.RequirementSpec, sc pipeline.StructuredContext, feedback []pipeline.Diagnostic) (*pipeline.CodeArtifact, error) {
	ctx, span := g.tracer.Start(ctx, "forge.generator.generate", trace.WithAttributes(
		attribute.String("forge.model", g.model),
		attribute.Int("forge.context_records", sc.Len()),
		attribute.Int("forge.feedback_count", len(feedback)),
	))
	defer span.End()

	fail := func(reason string, err error) (*pipeline.CodeArtifact, error) {
		gerr := pipeline.NewGenerationError(g.Name(), reason, err)
		span.RecordError(gerr)
		span.SetStatus(codes.Error, reason)
		return nil, gerr
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return fail("waiting for backend", err)
	}

	prompt := buildPrompt(spec, sc, feedback, g.budget)
	g.logger.Trace(ctx, "generation prompt", zap.String("prompt", prompt))

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if g.maxTokens > 0 {
		req.MaxCompletionTokens = g.maxTokens
	}

	started := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			g.logger.Warn(ctx, "backend rejected request",
				zap.Int("status", apiErr.HTTPStatusCode),
				zap.String("type", apiErr.Type),
			)
		}
		return fail("backend request", err)
	}
	if len(resp.Choices) == 0 {
		return fail("backend returned no choices", errEmptyReply)
	}

	content := resp.Choices[0].Message.Content
	g.logger.Debug(ctx, "generation reply",
		zap.Duration("latency", time.Since(started)),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	g.logger.Trace(ctx, "generation reply content", zap.String("content", content))

	units, err := parseReply(content, spec.Language)
	if err != nil {
		return fail("unusable reply", err)
	}
	span.SetAttributes(attribute.Int("forge.units", len(units)))

	return &pipeline.CodeArtifact{
		Name:  artifactName(spec),
		Units: units,
		Metadata: pipeline.ArtifactMetadata{
			Generator: g.Name(),
			CreatedAt: time.Now().UTC(),
		},
	}, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// artifactName derives a filesystem-friendly name from the spec title.
func artifactName(spec pipeline.RequirementSpec) string {
	name := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(spec.Title), "-"), "-")
	if name == "" {
		return "artifact"
	}
	if len(name) > 64 {
		name = strings.TrimRight(name[:64], "-")
	}
	return name
}
