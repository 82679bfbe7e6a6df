// Package config loads client settings from HCL files, dotenv files and the
// environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/tsarna/dares/pkg/dares/pagination"
	"github.com/tsarna/dares/pkg/dares/realtime"
	"github.com/tsarna/dares/pkg/dares/refresh"
	"go.uber.org/zap/zapcore"
)

// WebSocketURLEnv overrides the realtime endpoint, as in the web client's build.
const WebSocketURLEnv = "VITE_WS_URL"

const (
	RefreshAuto = "auto"
	RefreshPush = "push"
	RefreshPoll = "poll"
)

// Config is the complete client configuration.
type Config struct {
	API        APIConfig
	Realtime   RealtimeConfig
	Pagination PaginationConfig
	Refresh    RefreshConfig
	Session    SessionConfig
	Log        LogConfig
}

// APIConfig is the api block.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RealtimeConfig is the realtime block.
type RealtimeConfig struct {
	// URL is an explicit endpoint. When empty the endpoint is derived from
	// Origin, which defaults to the API base URL.
	URL                  string
	Origin               string
	Disabled             bool
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	DialTimeout          time.Duration
}

// PaginationConfig is the pagination block.
type PaginationConfig struct {
	PageSize    int
	MaxPageSize int
}

// RefreshConfig is the refresh block.
type RefreshConfig struct {
	Mode         string
	PollInterval time.Duration
	Events       []string
}

// SessionConfig is the session block.
type SessionConfig struct {
	Path string
}

// LogConfig is the log block.
type LogConfig struct {
	Level string
}

// Error reports an invalid setting.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Default returns a working configuration for a local server. The realtime
// override is read from the environment so it applies without a config file.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:3000/api",
			Timeout: 15 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:                  os.Getenv(WebSocketURLEnv),
			ReconnectDelay:       time.Second,
			MaxReconnectAttempts: 5,
			DialTimeout:          10 * time.Second,
		},
		Pagination: PaginationConfig{
			PageSize:    pagination.DefaultPageSize,
			MaxPageSize: pagination.DefaultMaxPageSize,
		},
		Refresh: RefreshConfig{
			Mode:         RefreshAuto,
			PollInterval: refresh.DefaultPollInterval,
			Events:       append([]string(nil), refresh.DefaultPushEvents...),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Error{Field: "api.base_url", Message: fmt.Sprintf("%q is not an http(s) URL", c.API.BaseURL)}
	}
	if c.API.Timeout <= 0 {
		return &Error{Field: "api.timeout", Message: "must be positive"}
	}

	if c.Realtime.ReconnectDelay <= 0 {
		return &Error{Field: "realtime.reconnect_delay", Message: "must be positive"}
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		return &Error{Field: "realtime.max_reconnect_attempts", Message: "must not be negative"}
	}
	if c.Realtime.DialTimeout <= 0 {
		return &Error{Field: "realtime.dial_timeout", Message: "must be positive"}
	}

	if c.Pagination.MaxPageSize < 1 {
		return &Error{Field: "pagination.max_page_size", Message: "must be at least 1"}
	}
	if c.Pagination.PageSize < 1 || c.Pagination.PageSize > c.Pagination.MaxPageSize {
		return &Error{Field: "pagination.page_size", Message: fmt.Sprintf("must be between 1 and %d", c.Pagination.MaxPageSize)}
	}

	switch c.Refresh.Mode {
	case RefreshAuto, RefreshPush, RefreshPoll:
	default:
		return &Error{Field: "refresh.mode", Message: fmt.Sprintf("%q is not one of auto, push, poll", c.Refresh.Mode)}
	}
	if c.Refresh.PollInterval < time.Second {
		return &Error{Field: "refresh.poll_interval", Message: "must be at least 1s"}
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return &Error{Field: "log.level", Message: err.Error()}
	}

	return nil
}

// Endpoint resolves the WebSocket URL. It returns realtime.ErrRealtimeDisabled
// when realtime is switched off or cannot be derived safely.
func (r RealtimeConfig) Endpoint(apiBaseURL string) (string, error) {
	if r.Disabled {
		return "", realtime.ErrRealtimeDisabled
	}

	origin := r.Origin
	if origin == "" {
		if u, err := url.Parse(apiBaseURL); err == nil && u.Host != "" {
			origin = u.Scheme + "://" + u.Host
		}
	}
	return realtime.ResolveEndpoint(r.URL, origin)
}
