package realtime

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrRealtimeDisabled is returned by ResolveEndpoint when no endpoint can be
// derived safely. Callers fall back to polling.
var ErrRealtimeDisabled = errors.New("realtime is disabled: no endpoint configured for a secure origin")

// ResolveEndpoint picks the WebSocket URL. An explicit override always wins.
// Otherwise a plain http origin maps to ws on the same host, ws and wss
// origins are used as they are, and an https origin disables realtime.
func ResolveEndpoint(override, origin string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		return override, nil
	}

	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", ErrRealtimeDisabled
	}

	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return origin, nil
	case "http":
		return "ws://" + u.Host, nil
	case "https":
		return "", ErrRealtimeDisabled
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
}

func withToken(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
