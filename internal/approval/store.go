// Package approval records intents that need a human sign-off. Requests are
// informational: the conversation continues while a ticket is pending.
package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

var invalidKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// TicketKey builds the store key "<session>.<intent>". Characters outside
// the key alphabet are replaced with underscores.
func TicketKey(sessionID, intent string) string {
	clean := func(s string) string {
		s = invalidKeyChars.ReplaceAllString(s, "_")
		return strings.ReplaceAll(s, "..", "_")
	}
	return clean(sessionID) + "." + clean(intent)
}

// Status represents the state of an approval ticket.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Ticket is what the orchestrator files when a turn enters an intent
// that names a human_approval role.
type Ticket struct {
	Key       string
	Role      string
	SessionID string
	Intent    string
	PolicyID  string
	Reason    string
}

// Approval is a stored ticket and its state.
type Approval struct {
	Key        string     `json:"key"`
	Status     Status     `json:"status"`
	Role       string     `json:"role"`
	SessionID  string     `json:"session_id"`
	Intent     string     `json:"intent"`
	PolicyID   string     `json:"policy_id"`
	Reason     string     `json:"reason"`
	Note       string     `json:"note,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Store manages approval files on disk, one JSON file per key.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create approval directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default approval store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "turnguard-pending")
	}
	return filepath.Join(home, ".turnguard", "pending")
}

// Request files a pending ticket. No-op if the key already exists, so a
// session re-entering the same intent does not reset a decision.
func (s *Store) Request(t Ticket) error {
	if t.Key == "" {
		t.Key = TicketKey(t.SessionID, t.Intent)
	}
	if err := validateKey(t.Key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(t.Key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	a := Approval{
		Key:       t.Key,
		Status:    StatusPending,
		Role:      t.Role,
		SessionID: t.SessionID,
		Intent:    t.Intent,
		PolicyID:  t.PolicyID,
		Reason:    t.Reason,
		CreatedAt: time.Now().UTC(),
	}

	return s.writeAtomic(path, a)
}

// Approve marks a ticket approved. If duration > 0 the approval expires.
func (s *Store) Approve(key string, duration time.Duration, note string) error {
	return s.resolve(key, StatusApproved, duration, note)
}

// Deny marks a ticket denied.
func (s *Store) Deny(key, note string) error {
	return s.resolve(key, StatusDenied, 0, note)
}

func (s *Store) resolve(key string, status Status, duration time.Duration, note string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return fmt.Errorf("approval %q not found: %w", key, err)
	}

	a.Status = status
	a.Note = note
	now := time.Now().UTC()
	a.ResolvedAt = &now
	a.ExpiresAt = nil
	if duration > 0 {
		exp := now.Add(duration)
		a.ExpiresAt = &exp
	}

	return s.writeAtomic(s.path(key), *a)
}

// Check returns the current status of a ticket.
// Returns StatusExpired if an approval has passed its deadline.
func (s *Store) Check(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return "", fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return "", fmt.Errorf("approval %q not found", key)
	}

	if a.Status == StatusApproved && a.ExpiresAt != nil && time.Now().UTC().After(*a.ExpiresAt) {
		a.Status = StatusExpired
		_ = s.writeAtomic(s.path(key), *a)
		return StatusExpired, nil
	}

	return a.Status, nil
}

// Get returns one ticket.
func (s *Store) Get(key string) (*Approval, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("invalid approval key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.read(key)
	if err != nil {
		return nil, fmt.Errorf("approval %q not found: %w", key, err)
	}
	return a, nil
}

// List returns all tickets, oldest first.
func (s *Store) List() ([]Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var approvals []Approval
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		a, err := s.read(key)
		if err != nil {
			continue
		}
		approvals = append(approvals, *a)
	}

	sort.SliceStable(approvals, func(i, j int) bool {
		if approvals[i].CreatedAt.Equal(approvals[j].CreatedAt) {
			return approvals[i].Key < approvals[j].Key
		}
		return approvals[i].CreatedAt.Before(approvals[j].CreatedAt)
	})
	return approvals, nil
}

// Pending returns tickets still waiting for a decision.
func (s *Store) Pending() ([]Approval, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []Approval
	for _, a := range all {
		if a.Status == StatusPending {
			out = append(out, a)
		}
	}
	return out, nil
}

// Cleanup removes all approval files in the store.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Approval, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}

	var a Approval
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}

	return &a, nil
}

func (s *Store) writeAtomic(path string, a Approval) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
