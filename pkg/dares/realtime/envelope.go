package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Server events understood by the client.
const (
	EventNotification       = "notification"
	EventNotificationsRead  = "notifications_read"
	EventDareUpdated        = "dare_updated"
	EventSwitchGameUpdated  = "switch_game_updated"
	EventLeaderboardUpdated = "leaderboard_updated"
	EventActivity           = "activity"
)

// Local events emitted by the client itself.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

var ErrMissingEvent = errors.New("envelope has no event name")

// Envelope is a decoded wire message. Payload is one of the typed payloads
// below, or UnknownPayload for events this client does not know about.
type Envelope struct {
	Event   string
	Payload any
	// PayloadErr is set when a known event's payload did not fit its type.
	// Payload is then an UnknownPayload holding the raw bytes.
	PayloadErr error
}

type wireEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type outboundEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// ID accepts identifiers encoded either as JSON strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// NotificationPayload is the payload of a notification event.
type NotificationPayload struct {
	ID        ID             `json:"id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Read      bool           `json:"read"`
	CreatedAt string         `json:"createdAt,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// NotificationsReadPayload is the payload of a notifications_read event.
type NotificationsReadPayload struct {
	IDs []ID `json:"ids,omitempty"`
	All bool `json:"all,omitempty"`
}

// DareUpdatedPayload is the payload of a dare_updated event.
type DareUpdatedPayload struct {
	DareID ID              `json:"dareId"`
	Status string          `json:"status,omitempty"`
	Dare   json.RawMessage `json:"dare,omitempty"`
}

// SwitchGameUpdatedPayload is the payload of a switch_game_updated event.
type SwitchGameUpdatedPayload struct {
	GameID ID              `json:"gameId"`
	Status string          `json:"status,omitempty"`
	Winner ID              `json:"winner,omitempty"`
	Game   json.RawMessage `json:"game,omitempty"`
}

// LeaderboardEntry is one leaderboard row.
type LeaderboardEntry struct {
	UserID   ID      `json:"userId"`
	Username string  `json:"username,omitempty"`
	Rank     int     `json:"rank,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

// LeaderboardUpdatedPayload is the payload of a leaderboard_updated event.
type LeaderboardUpdatedPayload struct {
	Entries []LeaderboardEntry `json:"entries,omitempty"`
}

// ActivityPayload is the payload of an activity event.
type ActivityPayload struct {
	ID        ID     `json:"id"`
	Type      string `json:"type"`
	Actor     ID     `json:"actor,omitempty"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// UnknownPayload carries the raw payload of an event this client has no type
// for. It is forwarded unchanged so newer servers keep working.
type UnknownPayload struct {
	Raw json.RawMessage
}

// MarshalJSON writes the payload exactly as the server sent it.
func (u UnknownPayload) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}

// ConnectedPayload is emitted as the connected event after each open.
type ConnectedPayload struct {
	ConnectionID string
}

// DisconnectedPayload is emitted as the disconnected event after each close.
type DisconnectedPayload struct {
	Reason string
	Code   int
}

// Decode parses a wire message. The payload may be carried under either
// "payload" or "data"; "payload" wins when both are present. Only a broken
// envelope is an error: a payload that does not fit its event's type is
// returned as UnknownPayload with PayloadErr set.
func Decode(data []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if wire.Event == "" {
		return Envelope{}, ErrMissingEvent
	}

	raw := wire.Payload
	if len(raw) == 0 {
		raw = wire.Data
	}

	payload, err := decodePayload(wire.Event, raw)
	if err != nil {
		return Envelope{
			Event:      wire.Event,
			Payload:    UnknownPayload{Raw: raw},
			PayloadErr: fmt.Errorf("invalid %s payload: %w", wire.Event, err),
		}, nil
	}

	return Envelope{Event: wire.Event, Payload: payload}, nil
}

func decodePayload(event string, raw json.RawMessage) (any, error) {
	switch event {
	case EventNotification:
		return decodeInto[NotificationPayload](raw)
	case EventNotificationsRead:
		return decodeInto[NotificationsReadPayload](raw)
	case EventDareUpdated:
		return decodeInto[DareUpdatedPayload](raw)
	case EventSwitchGameUpdated:
		return decodeInto[SwitchGameUpdatedPayload](raw)
	case EventLeaderboardUpdated:
		return decodeInto[LeaderboardUpdatedPayload](raw)
	case EventActivity:
		return decodeInto[ActivityPayload](raw)
	default:
		return UnknownPayload{Raw: raw}, nil
	}
}

func decodeInto[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// Encode builds an outbound {event, payload} message.
func Encode(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, ErrMissingEvent
	}
	return json.Marshal(outboundEnvelope{Event: event, Payload: payload})
}
