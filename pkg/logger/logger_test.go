package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := New(tt.level)
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestContextLogger_WithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithSessionID(WithTraceID(context.Background(), "trace-1"), "session-1")
	ctx = WithStreamName(ctx, "live")
	ctx = WithRenderer(WithSourceID(ctx, "cam"), "3")
	cl.Sugar(ctx).Infow("connected")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "trace-1", fields["trace_id"])
		assert.Equal(t, "session-1", fields["session_id"])
		assert.Equal(t, "live", fields["stream_name"])
		assert.Equal(t, "cam", fields["source_id"])
		assert.Equal(t, "3", fields["renderer"])
	}

	cl.WithContext(context.Background()).Info("plain")
	assert.Empty(t, logs.All()[1].ContextMap())
}
