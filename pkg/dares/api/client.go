// Package api is a thin client for the application's REST endpoints. Every
// failure comes back as *Error so callers can show Message(err) without
// leaking transport details.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tsarna/dares/pkg/dares/pagination"
	"github.com/tsarna/dares/pkg/dares/realtime"
	"go.uber.org/zap"
)

// TokenSource returns the bearer token for a request. An empty token sends
// the request unauthenticated.
type TokenSource func(ctx context.Context) (string, error)

// Notification is an entry of the notifications list.
type Notification = realtime.NotificationPayload

// LeaderboardEntry is one leaderboard row.
type LeaderboardEntry = realtime.LeaderboardEntry

// Dare is an entry of the dares list.
type Dare struct {
	ID          realtime.ID `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status,omitempty"`
	Difficulty  string      `json:"difficulty,omitempty"`
	Creator     realtime.ID `json:"creator,omitempty"`
	Performer   realtime.ID `json:"performer,omitempty"`
	CreatedAt   string      `json:"createdAt,omitempty"`
}

// SwitchGame is a switch game as returned by /switches/{id}.
type SwitchGame struct {
	ID           realtime.ID   `json:"id"`
	Status       string        `json:"status"`
	Creator      realtime.ID   `json:"creator,omitempty"`
	Participants []realtime.ID `json:"participants,omitempty"`
	Winner       realtime.ID   `json:"winner,omitempty"`
	Loser        realtime.ID   `json:"loser,omitempty"`
	CreatedAt    string        `json:"createdAt,omitempty"`
}

// Page is one page of a list endpoint. HasInfo is false when the server
// returned a bare list without a pagination block.
type Page[T any] struct {
	Items   []T
	Info    pagination.PageInfo
	HasInfo bool
}

// Client calls the dares REST API. Create one with NewClient.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	tokenSource TokenSource
	logger      *zap.Logger
}

// ClientBuilder provides a fluent interface for building API clients.
type ClientBuilder struct {
	baseURL     string
	timeout     time.Duration
	httpClient  *http.Client
	tokenSource TokenSource
	logger      *zap.Logger
}

// NewClient creates a new API client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		timeout: 15 * time.Second,
		logger:  zap.NewNop(),
	}
}

// WithBaseURL sets the API root, for example "https://api.example.com/api".
func (b *ClientBuilder) WithBaseURL(baseURL string) *ClientBuilder {
	b.baseURL = baseURL
	return b
}

// WithTimeout bounds each request. It is ignored when WithHTTPClient is used.
func (b *ClientBuilder) WithTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.timeout = timeout
	}
	return b
}

// WithHTTPClient replaces the HTTP client. Its timeout wins over WithTimeout.
func (b *ClientBuilder) WithHTTPClient(client *http.Client) *ClientBuilder {
	b.httpClient = client
	return b
}

// WithTokenSource sets where the bearer token comes from on each request.
func (b *ClientBuilder) WithTokenSource(source TokenSource) *ClientBuilder {
	b.tokenSource = source
	return b
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// IsValid validates the builder configuration
func (b *ClientBuilder) IsValid() error {
	if b.baseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(b.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Build creates the client, returning an error if the configuration is invalid.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	u, _ := url.Parse(strings.TrimRight(b.baseURL, "/"))

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: b.timeout}
	}

	return &Client{
		baseURL:     u,
		httpClient:  httpClient,
		tokenSource: b.tokenSource,
		logger:      b.logger,
	}, nil
}

// Notifications fetches one page of the current user's notifications.
func (c *Client) Notifications(ctx context.Context, page, limit int) (Page[Notification], error) {
	return fetchPage[Notification](ctx, c, "/notifications", page, limit)
}

// MarkNotificationsRead marks the given notifications as read; no ids marks
// all of them.
func (c *Client) MarkNotificationsRead(ctx context.Context, ids []string) error {
	body := map[string]any{}
	if len(ids) > 0 {
		body["ids"] = ids
	} else {
		body["all"] = true
	}
	_, err := c.do(ctx, http.MethodPost, "/notifications/read", nil, body)
	return err
}

// Leaderboard fetches the current leaderboard.
func (c *Client) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	body, err := c.do(ctx, http.MethodGet, "/stats/leaderboard", nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeList[LeaderboardEntry](body, c.logger), nil
}

// Dares fetches one page of dares.
func (c *Client) Dares(ctx context.Context, page, limit int) (Page[Dare], error) {
	return fetchPage[Dare](ctx, c, "/dares", page, limit)
}

// SwitchGame fetches a single switch game.
func (c *Client) SwitchGame(ctx context.Context, id string) (SwitchGame, error) {
	body, err := c.do(ctx, http.MethodGet, "/switches/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return SwitchGame{}, err
	}

	game, err := DecodeObject[SwitchGame](body)
	if err != nil {
		c.logger.Warn("Unexpected switch game response", zap.String("id", id), zap.Error(err))
		return SwitchGame{}, &Error{Category: CategoryGeneric, Err: err}
	}
	return game, nil
}

func fetchPage[T any](ctx context.Context, c *Client, path string, page, limit int) (Page[T], error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return Page[T]{}, err
	}

	result := Page[T]{Items: DecodeList[T](body, c.logger)}
	result.Info, result.HasInfo = ParsePageInfo(body)
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	target := *c.baseURL
	target.Path = c.baseURL.Path + path
	target.RawQuery = query.Encode()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Category: CategoryGeneric, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return nil, &Error{Category: CategoryGeneric, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokenSource != nil {
		token, err := c.tokenSource(ctx)
		if err != nil {
			return nil, &Error{Category: CategoryAuthentication, Err: err}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := transportError(err)
		c.logger.Warn("API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Stringer("category", apiErr.Category),
			zap.Error(err))
		return nil, apiErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}

	c.logger.Debug("API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := statusError(resp.StatusCode, serverMessage(body))
		c.logger.Warn("API request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Stringer("category", apiErr.Category))
		return nil, apiErr
	}

	return body, nil
}

// serverMessage pulls a "message" or "error" string out of an error body for
// logging. It is never shown to users.
func serverMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return strings.TrimSpace(string(body))
}
