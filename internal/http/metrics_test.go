package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/telemetry"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	server, err := NewServer(failingRunner(nil), logging.NewNop(), tel.Telemetry, nil)
	require.NoError(t, err)

	serve(server, http.MethodGet, "/health", nil)
	serve(server, http.MethodGet, "/health", nil)
	serve(server, http.MethodPost, "/api/v1/runs", "{")

	assert.Equal(t, int64(2), tel.CounterValue(t, "forge.http.requests_total",
		attribute.String("endpoint", "/health"),
		attribute.Int("status", http.StatusOK),
	))
	assert.Equal(t, int64(1), tel.CounterValue(t, "forge.http.requests_total",
		attribute.String("endpoint", "/api/v1/runs"),
		attribute.Int("status", http.StatusBadRequest),
	))
	assert.Equal(t, uint64(3), tel.HistogramCount(t, "forge.http.request_duration_seconds"))
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(t, failingRunner(nil))
	rec := serve(server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/health", "/health"},
		{"/api/v1/runs", "/api/v1/runs"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input))
	}
}
