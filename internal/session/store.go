// Package session keeps the logged-in user's token, role and profile.
//
// Store is the only reader and writer of the session file; everything else
// goes through Get, Set, Clear and Subscribe.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// User is the profile returned at login.
type User struct {
	ID                  int64  `json:"id,omitempty"`
	Email               string `json:"email,omitempty"`
	FullName            string `json:"fullName,omitempty"`
	OrganizationID      int64  `json:"organizationId,omitempty"`
	OrganizationName    string `json:"organizationName,omitempty"`
	OrganizationProPlan bool   `json:"organizationProPlan"`
}

// State is a snapshot of the session.
type State struct {
	Token string `json:"token"`
	Role  Role   `json:"role"`
	User  *User  `json:"user,omitempty"`
}

// LoggedIn reports whether a token is present.
func (s State) LoggedIn() bool { return s.Token != "" }

// ProPlan reports whether the user's organization is on the PRO plan.
func (s State) ProPlan() bool { return s.User != nil && s.User.OrganizationProPlan }

// Store persists State as JSON with owner-only permissions.
type Store struct {
	path string

	mu    sync.Mutex
	state State
	subs  map[int]chan State
	next  int
}

// DefaultPath returns the session file under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "qr-checkin", "session.json"), nil
}

// Open loads the session at path. A missing file is an empty session.
func Open(path string) (*Store, error) {
	s := &Store{path: path, subs: make(map[int]chan State)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read session: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Discarding unreadable session file")
		s.state = State{}
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Get returns the current state.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the bearer token, empty when logged out.
func (s *Store) Token() string {
	return s.Get().Token
}

// Set replaces the state, writes it to disk and notifies subscribers.
func (s *Store) Set(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}
	s.state = st
	s.broadcast(st)
	log.Debug().Str("role", string(st.Role)).Msg("Session saved")
	return nil
}

// Clear removes the session file and notifies subscribers.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	s.state = State{}
	s.broadcast(State{})
	log.Debug().Msg("Session cleared")
	return nil
}

// Subscribe returns a channel receiving the latest state after every change,
// and a function that ends the subscription. Slow readers only see the
// newest state.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// broadcast must be called with mu held.
func (s *Store) broadcast(st State) {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}
