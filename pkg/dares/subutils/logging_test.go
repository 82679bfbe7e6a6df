package subutils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type namedPayload struct{ id string }

func (n namedPayload) String() string { return "payload-" + n.id }

func TestLoggingHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("logs and forwards", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		h := &recordingHandler{}

		handler := LoggingHandler(h.Handle, zap.New(core), zapcore.InfoLevel, "printer")
		require.NoError(t, handler(ctx, "dare_updated", namedPayload{id: "7"}))

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "Event received", entry.Message)
		fields := entry.ContextMap()
		assert.Equal(t, "printer", fields["handler"])
		assert.Equal(t, "dare_updated", fields["event"])
		assert.Equal(t, "payload-7", fields["payload"])
		assert.Equal(t, true, fields["hasWrapped"])

		assert.Len(t, h.snapshot(), 1)
	})

	t.Run("log only", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		handler := LoggingHandler(nil, zap.New(core), zapcore.DebugLevel, "")
		require.NoError(t, handler(ctx, "activity", nil))

		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "LoggingHandler", fields["handler"])
		assert.Equal(t, "<nil>", fields["payload"])
		assert.Equal(t, false, fields["hasWrapped"])
	})

	t.Run("level below threshold", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)

		handler := LoggingHandler(nil, zap.New(core), zapcore.DebugLevel, "quiet")
		require.NoError(t, handler(ctx, "activity", "x"))
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("propagates wrapped error", func(t *testing.T) {
		failure := errors.New("nope")
		handler := LoggingHandler(func(context.Context, string, any) error { return failure }, nil, zapcore.InfoLevel, "")
		assert.ErrorIs(t, handler(ctx, "x", []byte("raw")), failure)
	})
}
