package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInitLogger_JSONWithTraceContext(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := InitLogger(Config{Level: "DEBUG", Format: "json", ServiceName: "staffgate", Variant: "console", Output: &buf})

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	l.DebugContext(ctx, "access decision", PrincipalID("p-1"), Outcome("allow"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "access decision", rec["msg"])
	assert.Equal(t, "console", rec["variant"])
	assert.Equal(t, "staffgate", rec["service"])
	assert.Equal(t, "p-1", rec["principal_id"])
	assert.Equal(t, traceID.String(), rec["trace_id"])
	assert.Equal(t, spanID.String(), rec["span_id"])
}

func TestInitLogger_LevelFilter(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := InitLogger(Config{Level: "warn", Output: &buf})

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

type countingHandler struct {
	slog.Handler
	n *int
}

func (h countingHandler) Handle(context.Context, slog.Record) error {
	*h.n++
	return nil
}

func TestFanoutHandler(t *testing.T) {
	var a, b int
	base := slog.NewTextHandler(&bytes.Buffer{}, nil)
	h := NewFanoutHandler(countingHandler{base, &a}, countingHandler{base, &b})

	slog.New(h).Info("one")

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
