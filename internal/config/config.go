// Package config loads forge configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete forge configuration.
type Config struct {
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	Generator   GeneratorConfig   `koanf:"generator"`
	Scraper     ScraperConfig     `koanf:"scraper"`
	Normalizer  NormalizerConfig  `koanf:"normalizer"`
	Validator   ValidatorConfig   `koanf:"validator"`
	Delivery    DeliveryConfig    `koanf:"delivery"`
	Events      EventsConfig      `koanf:"events"`
	Server      ServerConfig      `koanf:"server"`
	Temporal    TemporalConfig    `koanf:"temporal"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// CoordinatorConfig controls the generate/validate loop.
type CoordinatorConfig struct {
	MaxAttempts     int      `koanf:"max_attempts"`
	GenerateTimeout Duration `koanf:"generate_timeout"`
	ValidateTimeout Duration `koanf:"validate_timeout"`
	// FeedbackPolicy is "latest" or "cumulative".
	FeedbackPolicy string `koanf:"feedback_policy"`
}

// GeneratorConfig selects and configures the code generation backend.
type GeneratorConfig struct {
	// Provider is "openai" or "stub".
	Provider      string   `koanf:"provider"`
	Model         string   `koanf:"model"`
	BaseURL       string   `koanf:"base_url"`
	APIKey        Secret   `koanf:"api_key"`
	Temperature   float32  `koanf:"temperature"`
	MaxTokens     int      `koanf:"max_tokens"`
	Rate          float64  `koanf:"rate"`
	Burst         int      `koanf:"burst"`
	ContextBudget int      `koanf:"context_budget"`
	Timeout       Duration `koanf:"timeout"`
}

// ScraperConfig controls source fetching.
type ScraperConfig struct {
	Enabled      bool     `koanf:"enabled"`
	Concurrency  int      `koanf:"concurrency"`
	PerHostRate  float64  `koanf:"per_host_rate"`
	Timeout      Duration `koanf:"timeout"`
	MaxBodyBytes int64    `koanf:"max_body_bytes"`
	UserAgent    string   `koanf:"user_agent"`
	// AllowPrivateNetworks lets serve and worker fetch loopback, private and
	// link-local sources. Local runs always may.
	AllowPrivateNetworks bool `koanf:"allow_private_networks"`
}

// NormalizerConfig controls document chunking.
type NormalizerConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// ValidatorConfig toggles the optional validators. Structure checks always run.
type ValidatorConfig struct {
	Syntax  bool `koanf:"syntax"`
	Secrets bool `koanf:"secrets"`
	// SecretsAllowlist is an optional TOML file with [allowlist] paths and regexes.
	SecretsAllowlist string `koanf:"secrets_allowlist"`
}

// DeliveryConfig controls where accepted artifacts and reports go.
type DeliveryConfig struct {
	OutputDir  string `koanf:"output_dir"`
	ReportFile string `koanf:"report_file"`
}

// EventsConfig controls run event publishing. An empty URL disables it.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RunTimeout      Duration `koanf:"run_timeout"`
}

// TemporalConfig holds the workflow client configuration.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	// Protocol is "grpc" or "http/protobuf".
	Protocol   string  `koanf:"protocol"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// LoggingConfig is the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a configuration usable without any file or environment.
func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			MaxAttempts:     3,
			GenerateTimeout: Duration(2 * time.Minute),
			ValidateTimeout: Duration(30 * time.Second),
			FeedbackPolicy:  "latest",
		},
		Generator: GeneratorConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			Temperature:   0.2,
			MaxTokens:     4096,
			Rate:          1,
			Burst:         1,
			ContextBudget: 12000,
			Timeout:       Duration(90 * time.Second),
		},
		Scraper: ScraperConfig{
			Enabled:      true,
			Concurrency:  4,
			PerHostRate:  2,
			Timeout:      Duration(15 * time.Second),
			MaxBodyBytes: 2 << 20,
			UserAgent:    "forge/1.0",
		},
		Normalizer: NormalizerConfig{
			ChunkSize:    1500,
			ChunkOverlap: 150,
		},
		Validator: ValidatorConfig{
			Syntax:  true,
			Secrets: true,
		},
		Delivery: DeliveryConfig{
			OutputDir: "forge-out",
		},
		Events: EventsConfig{
			SubjectPrefix: "forge.runs",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
			RunTimeout:      Duration(10 * time.Minute),
		},
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "forge",
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			ServiceName: "forge",
			Protocol:    "http/protobuf",
			SampleRate:  1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Coordinator.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("coordinator.max_attempts must be >= 1, got %d", c.Coordinator.MaxAttempts))
	}
	switch c.Coordinator.FeedbackPolicy {
	case "", "latest", "cumulative":
	default:
		errs = append(errs, fmt.Errorf("coordinator.feedback_policy must be 'latest' or 'cumulative', got %q", c.Coordinator.FeedbackPolicy))
	}

	switch c.Generator.Provider {
	case "openai":
		if c.Generator.Model == "" {
			errs = append(errs, errors.New("generator.model is required for the openai provider"))
		}
		if c.Generator.BaseURL != "" {
			if err := validateURL(c.Generator.BaseURL, "http", "https"); err != nil {
				errs = append(errs, fmt.Errorf("generator.base_url: %w", err))
			}
		}
	case "stub":
	default:
		errs = append(errs, fmt.Errorf("generator.provider must be 'openai' or 'stub', got %q", c.Generator.Provider))
	}
	if c.Generator.Rate <= 0 || c.Generator.Burst < 1 {
		errs = append(errs, errors.New("generator.rate must be > 0 and generator.burst >= 1"))
	}

	if c.Scraper.Enabled {
		if c.Scraper.Concurrency < 1 {
			errs = append(errs, errors.New("scraper.concurrency must be >= 1"))
		}
		if c.Scraper.MaxBodyBytes <= 0 {
			errs = append(errs, errors.New("scraper.max_body_bytes must be > 0"))
		}
	}

	if c.Normalizer.ChunkSize <= 0 || c.Normalizer.ChunkOverlap < 0 || c.Normalizer.ChunkOverlap >= c.Normalizer.ChunkSize {
		errs = append(errs, fmt.Errorf("normalizer: need chunk_size > chunk_overlap >= 0, got %d/%d",
			c.Normalizer.ChunkSize, c.Normalizer.ChunkOverlap))
	}

	if c.Events.NATSURL != "" {
		if err := validateURL(c.Events.NATSURL, "nats", "tls"); err != nil {
			errs = append(errs, fmt.Errorf("events.nats_url: %w", err))
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		errs = append(errs, errors.New("telemetry.service_name required when telemetry is enabled"))
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be within [0,1], got %v", c.Telemetry.SampleRate))
	}

	return errors.Join(errs...)
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme %q not allowed (want one of %v)", u.Scheme, schemes)
}
