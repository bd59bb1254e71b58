package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_Trace(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	keys := map[string]bool{}
	for _, f := range ContextFields(ctx) {
		keys[f.Key] = true
	}
	assert.True(t, keys["trace_id"])
	assert.True(t, keys["span_id"])
	assert.True(t, keys["trace_sampled"])
}

func TestRunAndRequestIDs(t *testing.T) {
	ctx := WithRunID(context.Background(), "0b6c9e7e-1d2f-4b44-9e2a-4d7b1f1c2a10")
	ctx = WithRequestID(ctx, "req_42")

	assert.Equal(t, "0b6c9e7e-1d2f-4b44-9e2a-4d7b1f1c2a10", RunIDFromContext(ctx))
	assert.Equal(t, "req_42", RequestIDFromContext(ctx))
}

func TestInvalidIDsIgnored(t *testing.T) {
	tests := []string{"", "has space", "new\nline", strings.Repeat("a", maxIDLen+1)}
	for _, id := range tests {
		ctx := WithRequestID(context.Background(), id)
		assert.Empty(t, RequestIDFromContext(ctx), "id %q", id)
		ctx = WithRunID(context.Background(), id)
		assert.Empty(t, RunIDFromContext(ctx), "id %q", id)
	}
}

func TestAttempt(t *testing.T) {
	_, ok := AttemptFromContext(context.Background())
	assert.False(t, ok)

	a, ok := AttemptFromContext(WithAttempt(context.Background(), 3))
	assert.True(t, ok)
	assert.Equal(t, 3, a)
}

func TestWithLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
