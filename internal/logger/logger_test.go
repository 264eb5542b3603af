package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestSetupWriterRespectsLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn")

	slog.Info("hidden line")
	slog.Warn("visible line")

	assert.NotContains(t, buf.String(), "hidden line")
	assert.Contains(t, buf.String(), "visible line")
}

func TestContextAttrs(t *testing.T) {
	ctx := WithJobID(WithSessionID(WithTraceID(context.Background(), "t1"), "s1"), "j1")

	assert.Equal(t, "t1", GetTraceID(ctx))
	assert.Equal(t, "s1", GetSessionID(ctx))
	assert.Equal(t, "j1", GetJobID(ctx))
	assert.Len(t, Attrs(ctx), 3)
	assert.Empty(t, Attrs(context.Background()))
}
