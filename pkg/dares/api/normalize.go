package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/tsarna/dares/pkg/dares/pagination"
	"go.uber.org/zap"
)

// listQuery finds the list in a response body: a bare array, an array under
// one of the known keys, or the same shapes nested under "data".
const listQuery = `
def list:
  if type == "array" then .
  elif type == "object" then
    first((.data, .dares, .games, .users, .activities, .notifications, .leaderboard) | select(type == "array"))
    // (.data | select(type == "object") | list)
  else empty end;
first(list) // null
`

// objectQuery unwraps a single entity from an optional {"data": {...}} wrapper.
const objectQuery = `
if type == "object" then
  (if (.data | type) == "object" then .data else . end)
else null end
`

var (
	listCode   = mustCompile(listQuery)
	objectCode = mustCompile(objectQuery)
)

func mustCompile(src string) *gojq.Code {
	query, err := gojq.Parse(src)
	if err != nil {
		panic(fmt.Sprintf("failed to parse JQ query: %v", err))
	}
	code, err := gojq.Compile(query)
	if err != nil {
		panic(fmt.Sprintf("failed to compile JQ query: %v", err))
	}
	return code
}

func runQuery(ctx context.Context, code *gojq.Code, input any) (any, error) {
	iter := code.RunWithContext(ctx, input)
	result, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := result.(error); isErr {
		return nil, err
	}
	return result, nil
}

// NormalizeList extracts the list from a list response. Any other shape is
// logged as a warning and treated as an empty list.
func NormalizeList(body []byte, logger *zap.Logger) []any {
	if logger == nil {
		logger = zap.NewNop()
	}

	var input any
	if err := json.Unmarshal(body, &input); err != nil {
		logger.Warn("Response is not valid JSON, using empty list", zap.Error(err))
		return []any{}
	}

	result, err := runQuery(context.Background(), listCode, input)
	if err != nil {
		logger.Warn("Failed to normalize response, using empty list", zap.Error(err))
		return []any{}
	}

	list, ok := result.([]any)
	if !ok {
		logger.Warn("Unexpected response shape, using empty list", zap.String("type", fmt.Sprintf("%T", input)))
		return []any{}
	}
	return list
}

// DecodeList is NormalizeList followed by decoding each element into T.
// Elements that do not fit T are skipped with a warning.
func DecodeList[T any](body []byte, logger *zap.Logger) []T {
	if logger == nil {
		logger = zap.NewNop()
	}

	list := NormalizeList(body, logger)
	out := make([]T, 0, len(list))
	for i, item := range list {
		raw, err := json.Marshal(item)
		if err != nil {
			logger.Warn("Skipping list item", zap.Int("index", i), zap.Error(err))
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			logger.Warn("Skipping list item", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// DecodeObject decodes a single entity, unwrapping {"data": {...}}.
func DecodeObject[T any](body []byte) (T, error) {
	var v T
	var input any
	if err := json.Unmarshal(body, &input); err != nil {
		return v, fmt.Errorf("invalid JSON response: %w", err)
	}

	result, err := runQuery(context.Background(), objectCode, input)
	if err != nil {
		return v, err
	}
	if result == nil {
		return v, fmt.Errorf("expected an object response, got %T", input)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("invalid object response: %w", err)
	}
	return v, nil
}

// ParsePageInfo reads the "pagination" block of a list response.
func ParsePageInfo(body []byte) (pagination.PageInfo, bool) {
	var wrapper struct {
		Pagination *pagination.PageInfo `json:"pagination"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || wrapper.Pagination == nil {
		return pagination.PageInfo{}, false
	}
	return *wrapper.Pagination, true
}
