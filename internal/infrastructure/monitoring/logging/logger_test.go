package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromCore(core), logs
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", "", "CONSOLE"} {
		l, err := NewLogger(LogConfig{Level: "debug", Format: format})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_BadOutputPath(t *testing.T) {
	_, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir/sub/x.log"}})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		" warn ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"Error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestZapLogger_FieldsAreTyped(t *testing.T) {
	l, logs := newObserved(zapcore.DebugLevel)

	l.Info("predicted",
		String("mechanism", "SN2"),
		Int("rows", 3),
		Float64("temperature", 25.5),
		Bool("cached", true),
		Duration("latency", 2*time.Millisecond),
		Strings("classes", []string{"E1", "E2"}),
		Err(errors.New("boom")),
	)

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "SN2", ctx["mechanism"])
	assert.Equal(t, int64(3), ctx["rows"])
	assert.Equal(t, 25.5, ctx["temperature"])
	assert.Equal(t, true, ctx["cached"])
	assert.Equal(t, 2*time.Millisecond, ctx["latency"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	l, logs := newObserved(zapcore.WarnLevel)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, "w", logs.All()[0].Message)
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)
	child := l.Named("http").With(Component("router"))
	child.Info("ready")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "http", entry.LoggerName)
	assert.Equal(t, "router", entry.ContextMap()["component"])

	l.Info("parent")
	assert.NotContains(t, logs.All()[1].ContextMap(), "component")
}

func TestErr_Nil(t *testing.T) {
	assert.Equal(t, "<nil>", Err(nil).Value)
}

func TestStringer_Nil(t *testing.T) {
	assert.Equal(t, "<nil>", Stringer("k", nil).Value)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Debug("msg")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg")
	assert.NotNil(t, l.With(String("k", "v")))
	assert.NotNil(t, l.Named("x"))
	assert.NoError(t, l.Sync())
}

func TestDefault_SetAndRestore(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	l, logs := newObserved(zapcore.InfoLevel)
	SetDefault(l)
	SetDefault(nil)

	Default().Info("via default")
	assert.Equal(t, 1, logs.Len())
}

func TestContextPropagation(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), l.With(RequestID("req-1")))

	FromContext(ctx).Info("handled")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-1", logs.All()[0].ContextMap()["request_id"])
	assert.NotNil(t, FromContext(context.Background()))
}
