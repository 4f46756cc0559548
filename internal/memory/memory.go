// Package memory holds the per-session conversation state: current intent,
// message history and slots.
package memory

import (
	"maps"
	"slices"
	"sync"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one history entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Memory is owned by exactly one session. History is append-only and only
// grows through Commit, two entries at a time.
type Memory struct {
	SessionID string

	mu      sync.RWMutex
	intent  string
	history []Message
	slots   map[string]any
}

// New creates an empty memory positioned at startIntent.
func New(sessionID, startIntent string) *Memory {
	return &Memory{
		SessionID: sessionID,
		intent:    startIntent,
		slots:     make(map[string]any),
	}
}

// Intent returns the current intent.
func (m *Memory) Intent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intent
}

// History returns a copy of the message history.
func (m *Memory) History() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.history)
}

// Len returns the number of history entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// Turns returns the number of committed turns.
func (m *Memory) Turns() int {
	return m.Len() / 2
}

// Slots returns a copy of the slot map.
func (m *Memory) Slots() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.slots)
}

// SetSlot records a named value gathered during the conversation.
func (m *Memory) SetSlot(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[name] = value
}

// Commit appends the user and assistant entries of one turn and moves to
// next. Readers never observe a half-committed turn.
func (m *Memory) Commit(userText, assistantText, next string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history,
		Message{Role: RoleUser, Content: userText},
		Message{Role: RoleAssistant, Content: assistantText},
	)
	m.intent = next
}

// Snapshot is a point-in-time, JSON-serializable copy of a Memory.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	Intent    string         `json:"intent"`
	History   []Message      `json:"history"`
	Slots     map[string]any `json:"slots,omitempty"`
}

// Snapshot copies the memory under a single read lock.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := slices.Clone(m.history)
	if h == nil {
		h = []Message{}
	}
	return Snapshot{
		SessionID: m.SessionID,
		Intent:    m.intent,
		History:   h,
		Slots:     maps.Clone(m.slots),
	}
}

// WithUser returns a copy of history with a pending user entry appended.
// The memory itself is not modified.
func WithUser(history []Message, userText string) []Message {
	out := make([]Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, Message{Role: RoleUser, Content: userText})
}

// LastUser returns the content of the most recent user entry, or "".
func LastUser(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}
