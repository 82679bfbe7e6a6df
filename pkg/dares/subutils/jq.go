package subutils

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/tsarna/dares/pkg/dares/bus"
	"go.uber.org/zap"
)

// JqHandler returns a handler that runs query over each payload before
// passing the result to next. The query sees the event name as $event.
//
// Typed payloads are converted to plain JSON values first. A query that
// yields nothing drops the event; several results are delivered as an array.
// If the query fails at runtime the original payload is delivered unchanged.
func JqHandler(query string, next bus.Handler, logger *zap.Logger) (bus.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", query, err)
	}

	code, err := gojq.Compile(parsed, gojq.WithVariables([]string{"$event"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", query, err)
	}

	return func(ctx context.Context, event string, payload any) error {
		input, err := toJqInput(payload)
		if err != nil {
			logger.Error("JQ transform: failed to convert payload",
				zap.String("jq_query", query),
				zap.String("event", event),
				zap.String("payload_type", fmt.Sprintf("%T", payload)),
				zap.Error(err))
			return next(ctx, event, payload)
		}

		iter := code.RunWithContext(ctx, input, event)

		var results []any
		for {
			result, ok := iter.Next()
			if !ok {
				break
			}
			if execErr, isErr := result.(error); isErr {
				logger.Error("JQ transform: JQ execution error",
					zap.String("jq_query", query),
					zap.String("event", event),
					zap.Error(execErr))
				return next(ctx, event, payload)
			}
			results = append(results, result)
		}

		switch len(results) {
		case 0:
			return nil
		case 1:
			return next(ctx, event, results[0])
		default:
			return next(ctx, event, results)
		}
	}, nil
}

// toJqInput converts a payload into the plain maps, slices and scalars gojq
// accepts. Raw JSON is decoded; anything else goes through a JSON round trip.
func toJqInput(payload any) (any, error) {
	var raw []byte

	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}

	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		if _, isBytes := payload.([]byte); isBytes {
			return string(raw), nil
		}
		return nil, err
	}
	return input, nil
}
