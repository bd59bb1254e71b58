package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/forge/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Protocol = "carrier-pigeon"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_PrometheusOnly(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	assert.True(t, tel.IsEnabled())
	assert.False(t, tel.Health().Degraded)
	require.NotNil(t, tel.meterProvider)
	assert.Nil(t, tel.tracerProvider)

	counter, err := tel.Meter("forge-test").Int64Counter("forge_test_events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3, metric.WithAttributes(attribute.String("kind", "probe")))

	srv := httptest.NewServer(tel.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "forge_test_events")
	assert.Contains(t, string(body), `kind="probe"`)
}

func TestNew_WithLocalEndpoint(t *testing.T) {
	for _, protocol := range []string{"grpc", "http/protobuf"} {
		t.Run(protocol, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Endpoint = "localhost:4318"
			cfg.Protocol = protocol
			cfg.Metrics.OTLP = false

			tel, err := New(context.Background(), cfg)
			require.NoError(t, err)
			// Exporters connect lazily, so construction succeeds without a collector.
			assert.NotNil(t, tel.tracerProvider)

			ctx, cancel := context.WithTimeout(context.Background(), 0)
			defer cancel()
			_ = tel.Shutdown(ctx)
			assert.False(t, tel.IsEnabled())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.ServiceName = "" }, false},
		{"missing service", func(c *Config) { c.ServiceName = "" }, true},
		{"missing version", func(c *Config) { c.ServiceVersion = "" }, true},
		{"bad protocol", func(c *Config) { c.Protocol = "udp" }, true},
		{"insecure remote", func(c *Config) { c.Endpoint = "collector.example.com:4317" }, true},
		{"secure remote", func(c *Config) { c.Endpoint = "collector.example.com:4317"; c.Insecure = false }, false},
		{"insecure loopback", func(c *Config) { c.Endpoint = "127.0.0.1:4317" }, false},
		{"insecure ipv6 loopback", func(c *Config) { c.Endpoint = "[::1]:4317" }, false},
		{"sample rate", func(c *Config) { c.Sampling.Rate = 1.5 }, true},
		{"zero shutdown", func(c *Config) { c.Shutdown.Timeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	tc := config.Default().Telemetry
	tc.OTLPEndpoint = "http://localhost:4318"
	tc.Protocol = "grpc"
	tc.SampleRate = 0.5

	cfg := FromConfig(tc, "1.2.3")
	assert.Equal(t, "forge", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, 0.5, cfg.Sampling.Rate)
	assert.NoError(t, cfg.Validate())
}

func TestTestTelemetry(t *testing.T) {
	tel := NewTestTelemetry()

	_, span := tel.Tracer("t").Start(context.Background(), "work")
	span.SetAttributes(attribute.Int("n", 2))
	span.End()

	counter, err := tel.Meter("t").Int64Counter("events")
	require.NoError(t, err)
	counter.Add(context.Background(), 2, metric.WithAttributes(attribute.String("k", "a")))
	counter.Add(context.Background(), 5, metric.WithAttributes(attribute.String("k", "b")))

	tel.AssertSpanAttribute(t, "work", "n", int64(2))
	assert.Equal(t, int64(7), tel.CounterValue(t, "events"))
	assert.Equal(t, int64(5), tel.CounterValue(t, "events", attribute.String("k", "b")))
}
