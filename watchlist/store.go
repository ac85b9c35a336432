// Package watchlist owns the list of monitored groups and its JSON file
// persistence. The store is injected into the HTTP handlers and the Telegram
// bridge rather than living in package-level state.
package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrDuplicateGroup is returned by Add when the normalized name is already watched.
	ErrDuplicateGroup = errors.New("group already in watch-list")
	// ErrGroupNotFound is returned by Remove when the name is not watched.
	ErrGroupNotFound = errors.New("group not in watch-list")
)

// VerifyError reports that a group could not be confirmed reachable before Add.
type VerifyError struct {
	Group  string
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("group verification failed (%s): %s", e.Group, e.Reason)
}

// VerifyFunc confirms a group identifier resolves to a live chat. It returns
// the chat's display title on success and an error whose message is a
// human-readable reason on failure.
type VerifyFunc func(ctx context.Context, group string) (title string, err error)

// fileDoc is the persisted watch-list document, rewritten wholesale on every
// mutation. Last writer wins; the store is the single writer in-process.
type fileDoc struct {
	Groups    []string  `json:"groups"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the in-memory watch-list mirrored to a JSON file.
type Store struct {
	mu       sync.Mutex
	path     string
	groups   []string
	verify   VerifyFunc
	onChange func()
}

// New loads the watch-list from path, seeding it with defaults when the file
// is missing or unreadable, and persists the resulting state.
func New(path string, defaults []string) (*Store, error) {
	s := &Store{path: path, groups: slices.Clone(defaults)}
	if data, err := os.ReadFile(path); err == nil {
		var doc fileDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse watch-list %s: %w", path, err)
		}
		if doc.Groups != nil {
			s.groups = doc.Groups
		}
	}
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetVerifier installs the pre-insertion verification hook used by Add.
func (s *Store) SetVerifier(fn VerifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verify = fn
}

// SetOnChange installs the callback fired after every successful mutation,
// used to re-subscribe the ingestion handler.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Normalize prefixes bare names with @.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "@") {
		return name
	}
	return "@" + name
}

// List returns the watched groups in insertion order.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.groups)
}

// Add verifies and appends a group, persisting the new list. The returned
// title is the chat's resolved display title when verification ran.
func (s *Store) Add(ctx context.Context, name string) (string, error) {
	group := Normalize(name)
	if group == "" {
		return "", fmt.Errorf("empty group name")
	}

	s.mu.Lock()
	verify := s.verify
	dup := slices.Contains(s.groups, group)
	s.mu.Unlock()
	if dup {
		return "", ErrDuplicateGroup
	}

	var title string
	if verify != nil {
		t, err := verify(ctx, group)
		if err != nil {
			return "", &VerifyError{Group: group, Reason: err.Error()}
		}
		title = t
	}

	s.mu.Lock()
	// Re-check: a concurrent Add for the same name may have won the race
	// while verification was running.
	if slices.Contains(s.groups, group) {
		s.mu.Unlock()
		return "", ErrDuplicateGroup
	}
	s.groups = append(s.groups, group)
	err := s.persistLocked()
	onChange := s.onChange
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if onChange != nil {
		onChange()
	}
	return title, nil
}

// Remove deletes a group by its configured name and persists the new list.
func (s *Store) Remove(name string) error {
	group := strings.TrimSpace(name)

	s.mu.Lock()
	i := slices.Index(s.groups, group)
	if i < 0 {
		s.mu.Unlock()
		return ErrGroupNotFound
	}
	s.groups = slices.Delete(s.groups, i, i+1)
	err := s.persistLocked()
	onChange := s.onChange
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if onChange != nil {
		onChange()
	}
	return nil
}

// Contains reports whether the exact configured name is watched.
func (s *Store) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.groups, name)
}

func (s *Store) persistLocked() error {
	doc := fileDoc{Groups: s.groups, UpdatedAt: time.Now().UTC()}
	if doc.Groups == nil {
		doc.Groups = []string{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode watch-list: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write watch-list %s: %w", s.path, err)
	}
	return nil
}
