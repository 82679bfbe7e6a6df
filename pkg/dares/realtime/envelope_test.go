package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		event   string
		payload any
	}{
		{
			name:    "notification",
			input:   `{"event":"notification","payload":{"id":"n1","type":"dare_received","message":"You got a dare","read":false}}`,
			event:   EventNotification,
			payload: NotificationPayload{ID: "n1", Type: "dare_received", Message: "You got a dare"},
		},
		{
			name:    "notifications read with numeric ids",
			input:   `{"event":"notifications_read","payload":{"ids":[1,2,3]}}`,
			event:   EventNotificationsRead,
			payload: NotificationsReadPayload{IDs: []ID{"1", "2", "3"}},
		},
		{
			name:    "data key instead of payload",
			input:   `{"event":"switch_game_updated","data":{"gameId":"g9","status":"finished","winner":"u1"}}`,
			event:   EventSwitchGameUpdated,
			payload: SwitchGameUpdatedPayload{GameID: "g9", Status: "finished", Winner: "u1"},
		},
		{
			name:    "leaderboard",
			input:   `{"event":"leaderboard_updated","payload":{"entries":[{"userId":7,"username":"ana","rank":1,"score":99.5}]}}`,
			event:   EventLeaderboardUpdated,
			payload: LeaderboardUpdatedPayload{Entries: []LeaderboardEntry{{UserID: "7", Username: "ana", Rank: 1, Score: 99.5}}},
		},
		{
			name:    "activity",
			input:   `{"event":"activity","payload":{"id":"a1","type":"dare_completed","actor":"u2"}}`,
			event:   EventActivity,
			payload: ActivityPayload{ID: "a1", Type: "dare_completed", Actor: "u2"},
		},
		{
			name:    "known event without payload",
			input:   `{"event":"leaderboard_updated"}`,
			event:   EventLeaderboardUpdated,
			payload: LeaderboardUpdatedPayload{},
		},
		{
			name:    "known event with null payload",
			input:   `{"event":"activity","payload":null}`,
			event:   EventActivity,
			payload: ActivityPayload{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.event, env.Event)
			assert.Equal(t, tt.payload, env.Payload)
			assert.NoError(t, env.PayloadErr)
		})
	}

	t.Run("payload wins over data", func(t *testing.T) {
		env, err := Decode([]byte(`{"event":"dare_updated","payload":{"dareId":"p"},"data":{"dareId":"d"}}`))
		require.NoError(t, err)
		assert.Equal(t, ID("p"), env.Payload.(DareUpdatedPayload).DareID)
	})

	t.Run("unknown event keeps raw payload", func(t *testing.T) {
		env, err := Decode([]byte(`{"event":"season_started","payload":[1,2]}`))
		require.NoError(t, err)
		assert.Equal(t, "season_started", env.Event)
		unknown, ok := env.Payload.(UnknownPayload)
		require.True(t, ok)
		assert.JSONEq(t, `[1,2]`, string(unknown.Raw))
	})
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `hello`},
		{"truncated", `{"event":"notification"`},
		{"array", `[1,2,3]`},
		{"missing event", `{"payload":{}}`},
		{"empty event", `{"event":"","payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			assert.Error(t, err)
		})
	}

	_, err := Decode([]byte(`{"payload":1}`))
	assert.ErrorIs(t, err, ErrMissingEvent)
}

func TestDecodeMismatchedPayload(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		event   string
		payload string
	}{
		{"numeric read flag", `{"event":"notification","payload":{"id":1,"message":"hi","read":0}}`, EventNotification, `{"id":1,"message":"hi","read":0}`},
		{"numeric createdAt", `{"event":"notification","payload":{"id":1,"createdAt":1700000000}}`, EventNotification, `{"id":1,"createdAt":1700000000}`},
		{"string rank", `{"event":"leaderboard_updated","payload":{"entries":[{"userId":1,"rank":"1"}]}}`, EventLeaderboardUpdated, `{"entries":[{"userId":1,"rank":"1"}]}`},
		{"object id", `{"event":"dare_updated","payload":{"dareId":{"$oid":"abc"}}}`, EventDareUpdated, `{"dareId":{"$oid":"abc"}}`},
		{"string payload", `{"event":"notification","payload":"just a string"}`, EventNotification, `"just a string"`},
		{"boolean id", `{"event":"activity","data":{"id":true}}`, EventActivity, `{"id":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.event, env.Event)
			assert.Error(t, env.PayloadErr)

			unknown, ok := env.Payload.(UnknownPayload)
			require.True(t, ok)
			assert.JSONEq(t, tt.payload, string(unknown.Raw))
		})
	}
}

func TestUnknownPayloadJSON(t *testing.T) {
	data, err := json.Marshal(UnknownPayload{Raw: json.RawMessage(`{"x":1}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(data))

	data, err = json.Marshal(UnknownPayload{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestEncode(t *testing.T) {
	data, err := Encode("join_room", map[string]string{"room": "lobby"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"join_room","payload":{"room":"lobby"}}`, string(data))

	data, err = Encode("ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping","payload":null}`, string(data))

	_, err = Encode("", nil)
	assert.ErrorIs(t, err, ErrMissingEvent)
}
