package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/dares/pkg/dares/api"
	"github.com/tsarna/dares/pkg/dares/pagination"
	"github.com/tsarna/dares/pkg/dares/refresh"
	"github.com/tsarna/dares/pkg/dares/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type stubStrategy struct {
	mode refresh.Mode
}

func (s stubStrategy) Start(ctx context.Context) error { return nil }
func (s stubStrategy) Stop() error                     { return nil }
func (s stubStrategy) Mode() refresh.Mode              { return s.mode }

func TestChooseStrategy(t *testing.T) {
	push := stubStrategy{mode: refresh.ModePush}
	poll := stubStrategy{mode: refresh.ModePoll}

	tests := []struct {
		mode      string
		available bool
		want      refresh.Mode
		wantErr   bool
	}{
		{"auto", true, refresh.ModePush, false},
		{"auto", false, refresh.ModePoll, false},
		{"", true, refresh.ModePush, false},
		{"push", true, refresh.ModePush, false},
		{"push", false, 0, true},
		{"poll", true, refresh.ModePoll, false},
		{"sometimes", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.mode, tt.available), func(t *testing.T) {
			got, err := chooseStrategy(tt.mode, tt.available, push, poll)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Mode())
		})
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		debug   bool
		want    zapcore.Level
	}{
		{"", false, false, zap.InfoLevel},
		{"warn", false, false, zap.WarnLevel},
		{"ERROR", false, false, zap.ErrorLevel},
		{"info", true, false, zap.DebugLevel},
		{"warn", true, false, zap.WarnLevel},
		{"error", false, true, zap.DebugLevel},
		{"nonsense", false, false, zap.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v/%v", tt.level, tt.verbose, tt.debug), func(t *testing.T) {
			logger, err := setupLogger(tt.level, tt.verbose, tt.debug)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			assert.False(t, logger.Core().Enabled(tt.want-1))
		})
	}
}

func TestParsePayload(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, parsePayload(`{"a": 1}`))
	assert.Equal(t, "hello there", parsePayload("hello there"))
	assert.Nil(t, parsePayload("null"))
}

func TestUserJSON(t *testing.T) {
	raw, err := userJSON("")
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = userJSON(`{"id":"u1"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1"}`, string(raw))

	_, err = userJSON("{")
	assert.Error(t, err)
}

func TestPrintingHandler(t *testing.T) {
	var out bytes.Buffer
	h := newPrintingHandler(&out, zap.NewNop())

	require.NoError(t, h(context.Background(), "dare_updated", map[string]any{"dareId": "d1"}))
	require.NoError(t, h(context.Background(), "bad", func() {}))

	assert.Contains(t, out.String(), "dare_updated\t{\"dareId\":\"d1\"}\n")
	assert.Contains(t, out.String(), "bad\t<error marshaling JSON")
}

func TestPrintNotifications(t *testing.T) {
	var out bytes.Buffer
	printNotifications(&out, []api.Notification{
		{ID: "1", Type: "dare_received", Message: "New dare"},
		{ID: "2", Type: "dare_completed", Message: "Done", Read: true},
	}, pagination.Snapshot{CurrentPage: 1, PageSize: 2, TotalItems: 3, TotalPages: 2, HasNextPage: true})

	assert.Contains(t, out.String(), "New dare")
	assert.Contains(t, out.String(), "Page 1 of 2 (3 total), next: --page 2")
}

func TestUserError(t *testing.T) {
	err := userError(zap.NewNop(), "test", &api.Error{Status: 404, Category: api.CategoryNotFound})
	assert.EqualError(t, err, api.CategoryNotFound.Message())
}

// execute runs the root command in-process against a config file that points
// at apiURL and keeps the session under dir.
func execute(t *testing.T, dir, apiURL string, args ...string) (string, error) {
	t.Helper()

	cfgFile := filepath.Join(dir, "dares.hcl")
	cfg := fmt.Sprintf(`
api {
  base_url = %q
}

realtime {
  enabled = false
}

session {
  path = %q
}

log {
  level = "error"
}
`, apiURL+"/api", filepath.Join(dir, "session.json"))
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--config", cfgFile))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		configPaths = nil
	})

	err := rootCmd.Execute()
	configPaths = nil
	return out.String(), err
}

func TestCommands(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"data": [{"id": 3, "type": "dare_received", "message": "Third"}, {"id": 4, "type": "dare_received", "message": "Fourth"}], "pagination": {"page": 2, "limit": 2, "total": 5}}`)
			return
		}
		fmt.Fprint(w, `{"notifications": [{"id": 1, "message": "One"}, {"id": 2, "message": "Two"}, {"id": 3, "message": "Three"}]}`)
	})
	router.Get("/api/stats/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"userId": 1, "username": "ana", "score": 42.5}, {"userId": 2, "username": "bo", "rank": 7, "score": 10}]`)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	dir := t.TempDir()

	_, err := execute(t, dir, server.URL, "notifications", "--page", "2", "--page-size", "2")
	assert.EqualError(t, err, api.CategoryAuthentication.Message())

	_, err = execute(t, dir, server.URL, "login", "--access-token", "tok", "--user", `{"id":"u1"}`)
	require.NoError(t, err)

	store, err := session.NewFileStore(filepath.Join(dir, "session.json"), nil)
	require.NoError(t, err)
	token, err := store.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	out, err := execute(t, dir, server.URL, "notifications", "--page", "2", "--page-size", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Fourth")
	assert.Contains(t, out, "Page 2 of 3 (5 total), next: --page 3")

	out, err = execute(t, dir, server.URL, "notifications", "--page", "9", "--page-size", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Three", "unpaginated lists are paged locally and clamped")
	assert.Contains(t, out, "Page 2 of 2 (3 total)")

	out, err = execute(t, dir, server.URL, "leaderboard")
	require.NoError(t, err)
	assert.Contains(t, out, "ana")
	assert.Contains(t, out, "42.5")
	assert.Contains(t, out, "7")

	_, err = execute(t, dir, server.URL, "logout")
	require.NoError(t, err)
	_, err = store.Token(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession)
}
