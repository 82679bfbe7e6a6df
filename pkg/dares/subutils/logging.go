package subutils

import (
	"context"
	"fmt"

	"github.com/tsarna/dares/pkg/dares/bus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingHandler wraps a bus handler and logs every delivery at the given
// level before passing it on. If next is nil the returned handler only logs.
func LoggingHandler(next bus.Handler, logger *zap.Logger, level zapcore.Level, name string) bus.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = "LoggingHandler"
	}

	return func(ctx context.Context, event string, payload any) error {
		logger.Log(level, "Event received",
			zap.String("handler", name),
			zap.String("event", event),
			zap.String("payload", describePayload(payload)),
			zap.Bool("hasWrapped", next != nil),
		)

		if next != nil {
			return next(ctx, event, payload)
		}

		return nil
	}
}

func describePayload(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return "<nil>"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%+v", v)
	}
}
