// Package auth handles sign-in against the identity provider and keeps the
// resulting credentials.
package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// CredentialLifetime is how long stored credentials are honoured after sign-in.
const CredentialLifetime = 7 * 24 * time.Hour

// Credentials are the tokens issued by the identity provider.
type Credentials struct {
	IDToken      string    `yaml:"id_token"`
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token,omitempty"`
	Expiry       time.Time `yaml:"expiry,omitempty"`
	IssuedAt     time.Time `yaml:"issued_at"`
}

// Valid reports whether the credentials are usable at now.
func (c Credentials) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.IssuedAt.Add(CredentialLifetime))
}

// Jar keeps credentials in a file readable only by the owner. It implements
// client.TokenSource.
type Jar struct {
	mu    sync.RWMutex
	path  string
	creds Credentials
	now   func() time.Time
}

// NewJar opens the jar at path. A missing file yields an empty jar; an empty
// path keeps credentials in memory.
func NewJar(path string) (*Jar, error) {
	j := &Jar{path: path, now: time.Now}
	if path == "" {
		return j, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if err := yaml.Unmarshal(data, &j.creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return j, nil
}

// Credentials returns the stored credentials if they have not expired.
func (j *Jar) Credentials() (Credentials, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.creds.Valid(j.now()) {
		return Credentials{}, false
	}
	return j.creds, true
}

// AccessToken returns the bearer token for backend calls.
func (j *Jar) AccessToken() (string, bool) {
	creds, ok := j.Credentials()
	if !ok {
		return "", false
	}
	return creds.AccessToken, true
}

// Store replaces the stored credentials. A zero IssuedAt is set to now.
func (j *Jar) Store(creds Credentials) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if creds.IssuedAt.IsZero() {
		creds.IssuedAt = j.now()
	}
	j.creds = creds
	if j.path == "" {
		return nil
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Clear removes the stored credentials.
func (j *Jar) Clear() error {
	_, err := j.Drop()
	return err
}

// Drop removes the stored credentials and reports whether they held an
// access token.
func (j *Jar) Drop() (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	held := j.creds.AccessToken != ""
	j.creds = Credentials{}
	if j.path == "" {
		return held, nil
	}
	if err := os.Remove(j.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return held, fmt.Errorf("remove credentials: %w", err)
	}
	return held, nil
}
