package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Dialer opens a transport connection to the given URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is a message-oriented transport connection. Read is only ever called
// from a single goroutine; Write may be called concurrently with Read.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// CloseError is returned by Conn.Read when the remote end closed the
// connection with a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed with status %d", e.Code)
	}
	return fmt.Sprintf("connection closed with status %d: %s", e.Code, e.Reason)
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// WebSocketDialer dials WebSocket connections using coder/websocket.
type WebSocketDialer struct {
	// ReadLimit caps the size of a single inbound message. Zero keeps the
	// library default.
	ReadLimit int64
	// HTTPHeader is sent with the handshake request.
	HTTPHeader http.Header
	// HTTPClient is used for the handshake; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	opts := &websocket.DialOptions{
		HTTPHeader: d.HTTPHeader,
		HTTPClient: d.HTTPClient,
	}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			return nil, &CloseError{Code: int(closeErr.Code), Reason: closeErr.Reason}
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}
