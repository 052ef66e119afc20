package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	l, err := New("debug", "json", "health-telemetry")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New("warn", "console", "")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := New("loud", "json", "")
	assert.Error(t, err)

	_, err = New("info", "xml", "")
	assert.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	fallback := zap.NewNop()

	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	reqLog := WithRequestID(zap.New(core), "abc-123")
	ctx := WithContext(context.Background(), reqLog)
	FromContext(ctx, fallback).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc-123", entries[0].ContextMap()["req_id"])
}
