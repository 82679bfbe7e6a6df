// Package session persists the client's login state between runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// ErrNoSession is returned when no access token has been stored.
var ErrNoSession = errors.New("no session: log in first")

const defaultPath = "~/.config/dares/session.json"

// Data is the persisted state. Field names match the keys the web client
// keeps in local storage so a session can be copied between the two.
type Data struct {
	AccessToken          string          `json:"accessToken,omitempty"`
	RefreshToken         string          `json:"refreshToken,omitempty"`
	User                 json.RawMessage `json:"user,omitempty"`
	ImpersonatorToken    string          `json:"impersonatorToken,omitempty"`
	ActivityFeedLastSeen string          `json:"activityFeedLastSeen,omitempty"`
}

// Impersonating reports whether an admin token is parked while acting as
// another user.
func (d Data) Impersonating() bool {
	return d.ImpersonatorToken != ""
}

// DefaultPath returns the session file location used when none is configured.
func DefaultPath() (string, error) {
	return homedir.Expand(defaultPath)
}

// FileStore keeps Data in a JSON file readable only by the owner.
type FileStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileStore creates a store at path, expanding a leading ~. An empty path
// means DefaultPath.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve session path: %w", err)
		}
	} else {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand session path %q: %w", path, err)
		}
		path = expanded
	}

	return &FileStore{path: path, logger: logger}, nil
}

// Path returns the expanded file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the stored session. A missing file yields ErrNoSession.
func (s *FileStore) Load() (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() (Data, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Data{}, ErrNoSession
	}
	if err != nil {
		return Data{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("failed to parse session file %s: %w", s.path, err)
	}
	return data, nil
}

// Save replaces the stored session.
func (s *FileStore) Save(data Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(data)
}

func (s *FileStore) saveLocked(data Data) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.logger.Debug("Session saved", zap.String("path", s.path))
	return nil
}

func (s *FileStore) update(fn func(*Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	if err := fn(&data); err != nil {
		return err
	}
	return s.saveLocked(data)
}

// Token returns the stored access token. Its signature matches the API
// client's token source; the realtime client reads it once per connect.
func (s *FileStore) Token(ctx context.Context) (string, error) {
	data, err := s.Load()
	if err != nil {
		return "", err
	}
	if data.AccessToken == "" {
		return "", ErrNoSession
	}
	return data.AccessToken, nil
}

// Clear removes the session file. Clearing an absent session is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	s.logger.Debug("Session cleared", zap.String("path", s.path))
	return nil
}

// Impersonate parks the current token and acts as another user until
// StopImpersonating is called.
func (s *FileStore) Impersonate(token string, user json.RawMessage) error {
	return s.update(func(d *Data) error {
		if d.AccessToken == "" {
			return ErrNoSession
		}
		if d.ImpersonatorToken == "" {
			d.ImpersonatorToken = d.AccessToken
		}
		d.AccessToken = token
		d.User = user
		return nil
	})
}

// StopImpersonating restores the parked token. It is a no-op when not
// impersonating.
func (s *FileStore) StopImpersonating() error {
	return s.update(func(d *Data) error {
		if d.ImpersonatorToken == "" {
			return nil
		}
		d.AccessToken = d.ImpersonatorToken
		d.ImpersonatorToken = ""
		d.User = nil
		return nil
	})
}

// LastSeen returns when the activity feed was last viewed, or the zero time.
func (s *FileStore) LastSeen() (time.Time, error) {
	data, err := s.Load()
	if errors.Is(err, ErrNoSession) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if data.ActivityFeedLastSeen == "" {
		return time.Time{}, nil
	}

	seen, err := time.Parse(time.RFC3339, data.ActivityFeedLastSeen)
	if err != nil {
		s.logger.Warn("Ignoring invalid activity feed timestamp", zap.String("value", data.ActivityFeedLastSeen))
		return time.Time{}, nil
	}
	return seen, nil
}

// MarkSeen records when the activity feed was last viewed.
func (s *FileStore) MarkSeen(at time.Time) error {
	return s.update(func(d *Data) error {
		d.ActivityFeedLastSeen = at.UTC().Format(time.RFC3339)
		return nil
	})
}
