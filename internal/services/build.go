package services

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/config"
	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/events"
	"github.com/fyrsmithlabs/forge/internal/generator"
	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/normalize"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
	"github.com/fyrsmithlabs/forge/internal/scrape"
	"github.com/fyrsmithlabs/forge/internal/telemetry"
	"github.com/fyrsmithlabs/forge/internal/validator"
)

// BuildOptions adjusts Build.
type BuildOptions struct {
	// Offline forces the stub generator and disables scraping.
	Offline bool

	// Generator overrides the configured generator.
	Generator pipeline.Generator

	// Observers receive every coordinator transition in addition to the
	// event publisher.
	Observers []coordinator.Observer

	// PublicSourcesOnly restricts scraping to public addresses unless
	// scraper.allow_private_networks is set. Surfaces that accept
	// requirements from remote callers set it.
	PublicSourcesOnly bool
}

// Build constructs a registry and service from configuration. tel may be nil.
// The caller owns the returned service and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry, opts BuildOptions) (*Service, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	gen := opts.Generator
	if gen == nil {
		var err error
		gen, err = buildGenerator(cfg, logger, tel, opts.Offline)
		if err != nil {
			return nil, err
		}
	}

	val, err := buildValidator(cfg, logger)
	if err != nil {
		return nil, err
	}

	pub := buildPublisher(ctx, cfg, logger)

	policy, err := coordinator.ParseFeedbackPolicy(cfg.Coordinator.FeedbackPolicy)
	if err != nil {
		return nil, err
	}
	coordOpts := []coordinator.Option{
		coordinator.WithMaxAttempts(cfg.Coordinator.MaxAttempts),
		coordinator.WithGenerateTimeout(cfg.Coordinator.GenerateTimeout.Duration()),
		coordinator.WithValidateTimeout(cfg.Coordinator.ValidateTimeout.Duration()),
		coordinator.WithFeedbackPolicy(policy),
		coordinator.WithLogger(logger.Named("coordinator")),
		coordinator.WithTracer(tel.Tracer("github.com/fyrsmithlabs/forge/coordinator")),
		coordinator.WithMeter(tel.Meter("github.com/fyrsmithlabs/forge/coordinator")),
		coordinator.WithObserver(events.Observer(pub)),
	}
	for _, obs := range opts.Observers {
		coordOpts = append(coordOpts, coordinator.WithObserver(obs))
	}
	coord, err := coordinator.New(gen, val, coordOpts...)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	regOpts := Options{
		Coordinator: coord,
		Normalizer:  normalize.New(cfg.Normalizer.ChunkSize, cfg.Normalizer.ChunkOverlap, logger.Named("normalize")),
		Publisher:   pub,
	}
	if cfg.Scraper.Enabled && !opts.Offline {
		regOpts.Scraper = buildScraper(cfg, logger, opts.PublicSourcesOnly)
	}
	if cfg.Delivery.OutputDir != "" {
		regOpts.Writer = delivery.NewFileWriter(cfg.Delivery.OutputDir, logger.Named("delivery"))
	}

	svcOpts := ServiceOptions{Logger: logger, ReportFile: cfg.Delivery.ReportFile}
	if cfg.Delivery.OutputDir != "" {
		svcOpts.ReportDir = filepath.Join(cfg.Delivery.OutputDir, "reports")
	}

	logger.Info(ctx, "pipeline built",
		zap.String("generator", gen.Name()),
		zap.String("validator", val.Name()),
		zap.Bool("scraper", regOpts.Scraper != nil),
		zap.Bool("events", cfg.Events.NATSURL != ""),
	)
	return NewService(NewRegistry(regOpts), svcOpts), nil
}

// Close releases the event publisher.
func (s *Service) Close() error {
	return s.reg.Publisher().Close()
}

func buildGenerator(cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry, offline bool) (pipeline.Generator, error) {
	if offline || cfg.Generator.Provider == "stub" {
		return generator.NewStub(), nil
	}
	gen, err := generator.NewOpenAI(generator.Config{
		Model:         cfg.Generator.Model,
		BaseURL:       cfg.Generator.BaseURL,
		APIKey:        cfg.Generator.APIKey.Value(),
		Temperature:   cfg.Generator.Temperature,
		MaxTokens:     cfg.Generator.MaxTokens,
		ContextBudget: cfg.Generator.ContextBudget,
	},
		&http.Client{Timeout: cfg.Generator.Timeout.Duration()},
		generator.WithLimiter(generator.NewLimiter(cfg.Generator.Rate, cfg.Generator.Burst)),
		generator.WithLogger(logger.Named("generator")),
		generator.WithTracer(tel.Tracer("github.com/fyrsmithlabs/forge/generator")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	return gen, nil
}

func buildValidator(cfg *config.Config, logger *logging.Logger) (pipeline.Validator, error) {
	members := []pipeline.Validator{validator.NewStructure()}
	if cfg.Validator.Syntax {
		members = append(members, validator.NewSyntax())
	}
	if cfg.Validator.Secrets {
		allow, err := validator.LoadAllowlist(cfg.Validator.SecretsAllowlist)
		if err != nil {
			return nil, err
		}
		sec, err := validator.NewSecrets(allow)
		if err != nil {
			return nil, err
		}
		members = append(members, sec)
	}
	return validator.NewChain(logger.Named("validator"), members...), nil
}

func buildScraper(cfg *config.Config, logger *logging.Logger, publicOnly bool) *scrape.HTTPScraper {
	scrapeOpts := []scrape.Option{
		scrape.WithLogger(logger.Named("scrape")),
		scrape.WithConcurrency(cfg.Scraper.Concurrency),
		scrape.WithPerHostRate(cfg.Scraper.PerHostRate),
		scrape.WithTimeout(cfg.Scraper.Timeout.Duration()),
		scrape.WithMaxBodyBytes(cfg.Scraper.MaxBodyBytes),
		scrape.WithUserAgent(cfg.Scraper.UserAgent),
	}
	if publicOnly && !cfg.Scraper.AllowPrivateNetworks {
		scrapeOpts = append(scrapeOpts, scrape.WithPublicOnly())
	}
	return scrape.New(scrapeOpts...)
}

// buildPublisher falls back to a NopPublisher when NATS is unreachable.
func buildPublisher(ctx context.Context, cfg *config.Config, logger *logging.Logger) events.Publisher {
	if cfg.Events.NATSURL == "" {
		return events.NopPublisher{}
	}
	pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger.Named("events"))
	if err != nil {
		logger.Warn(ctx, "event publishing disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	return pub
}
