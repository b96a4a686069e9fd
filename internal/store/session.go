// Package store holds the client-side state mirrors: the signed-in session,
// the conversation list, per-conversation item lists and the active chat
// transcript. Every store is a mutex-guarded value owned by the app
// container; there is no package-level state.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/raphaelgruber/docchat/internal/models"
	"gopkg.in/yaml.v3"
)

// SessionStore holds the signed-in identity. When a path is set the identity
// is written there so a later process in the same login session picks it up.
type SessionStore struct {
	mu      sync.RWMutex
	session models.Session
	path    string
	logger  *slog.Logger
}

// NewSessionStore creates a session store persisted at path. An empty path
// keeps the session in memory only. A missing or unreadable file yields a
// signed-out session.
func NewSessionStore(path string, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SessionStore{path: path, logger: logger}
	if path != "" {
		if err := s.load(); err != nil {
			logger.Warn("discarding persisted session", "path", path, "error", err)
		}
	}
	return s
}

// Snapshot returns a copy of the current session.
func (s *SessionStore) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.session
	if out.User != nil {
		u := *out.User
		out.User = &u
	}
	return out
}

// SignIn records user as the authenticated identity.
func (s *SessionStore) SignIn(user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = models.Session{User: &user, IsAuthenticated: true}
	return s.save()
}

// SignOut clears the session.
func (s *SessionStore) SignOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = models.Session{}
	return s.save()
}

// Expire signs the session out after the backend rejected its credentials.
// It returns true only for the call that performed the transition, so
// concurrent rejections produce a single sign-out.
func (s *SessionStore) Expire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsAuthenticated {
		return false
	}
	s.session = models.Session{}
	if err := s.save(); err != nil {
		s.logger.Warn("failed to persist expired session", "error", err)
	}
	return true
}

// Reset clears the in-memory session without touching the persisted file.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = models.Session{}
}

func (s *SessionStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}

	var session models.Session
	if err := yaml.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	if session.IsAuthenticated && session.User == nil {
		return fmt.Errorf("decode session: authenticated without identity")
	}
	s.session = session
	return nil
}

// save must be called with s.mu held.
func (s *SessionStore) save() error {
	if s.path == "" {
		return nil
	}
	if !s.session.IsAuthenticated {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove session: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(s.session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
