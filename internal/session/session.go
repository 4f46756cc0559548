// Package session tracks live conversations for the long-running front ends
// (gRPC server, MCP server, chat). Each session is bound to the policy that
// was active when it started.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/turnguard/internal/audit"
	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/oracle"
	"github.com/ppiankov/turnguard/internal/policy"
	"github.com/ppiankov/turnguard/internal/turn"
)

// ErrNotFound is returned for unknown or ended session ids.
var ErrNotFound = errors.New("session: not found")

// Session is one live conversation.
type Session struct {
	ID        string
	StartedAt time.Time
	*turn.Orchestrator
}

// Info is a listing entry.
type Info struct {
	ID        string    `json:"id"`
	PolicyID  string    `json:"policy_id"`
	Intent    string    `json:"intent"`
	Turns     int       `json:"turns"`
	Done      bool      `json:"done"`
	StartedAt time.Time `json:"started_at"`
}

// Options holds the collaborators shared by every session.
type Options struct {
	Oracle oracle.Oracle
	Sink   audit.Sink
	Engine *guard.Engine
	Turn   turn.Config
	// NewID overrides uuid generation.
	NewID func() string
}

// Manager owns the active policy snapshot and the session table.
type Manager struct {
	mu       sync.RWMutex
	policy   *policy.Policy
	hash     string
	sessions map[string]*Session
	opts     Options
	log      *slog.Logger
}

// NewManager creates a manager serving p.
func NewManager(p *policy.Policy, hash string, opts Options) *Manager {
	if opts.Engine == nil {
		opts.Engine = guard.NewEngine(guard.Options{})
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := opts.Turn.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		policy:   p,
		hash:     hash,
		sessions: make(map[string]*Session),
		opts:     opts,
		log:      logger,
	}
}

// Start opens a session on the current policy.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.opts.NewID()
	if _, exists := m.sessions[id]; exists {
		return nil, fmt.Errorf("session: id collision %q", id)
	}
	s := &Session{
		ID:           id,
		StartedAt:    time.Now().UTC(),
		Orchestrator: turn.New(m.policy, m.hash, m.opts.Oracle, m.opts.Sink, m.opts.Engine, id, m.opts.Turn),
	}
	m.sessions[id] = s
	m.log.InfoContext(ctx, "session started", "session", id, "policy", m.policy.ID, "version", m.policy.Version)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// End removes a session. Its audit records stay.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	m.log.Info("session ended", "session", id)
	return nil
}

// Reload swaps the policy for sessions started from now on.
func (m *Manager) Reload(p *policy.Policy, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.policy
	m.policy = p
	m.hash = hash
	m.log.Info("policy reloaded", "policy", p.ID, "from_version", old.Version, "to_version", p.Version, "hash", hash)
}

// Policy returns the active policy and its hash.
func (m *Manager) Policy() (*policy.Policy, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy, m.hash
}

// Engine returns the shared guard engine.
func (m *Manager) Engine() *guard.Engine { return m.opts.Engine }

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns live sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		mem := s.Memory()
		out = append(out, Info{
			ID:        s.ID,
			PolicyID:  s.Policy().ID,
			Intent:    mem.Intent(),
			Turns:     mem.Turns(),
			Done:      s.Done(),
			StartedAt: s.StartedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
