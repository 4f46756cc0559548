package audit

import (
	"github.com/ppiankov/turnguard/internal/guard"
)

// TimestampFormat is the layout used in event timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Event is one audited turn. Events are built once by the orchestrator and
// never modified after they are appended.
// All fields are concrete types so json.Marshal field order is fixed and
// line hashes are reproducible.
type Event struct {
	Timestamp     string         `json:"ts"`
	SessionID     string         `json:"session_id"`
	Turn          int            `json:"turn"`
	PolicyID      string         `json:"policy_id"`
	PolicyHash    string         `json:"policy_hash"`
	Intent        string         `json:"intent"`
	Allowed       []string       `json:"allowed_next"`
	Clamped       bool           `json:"clamped"`
	Proposed      string         `json:"proposed,omitempty"`
	UserText      string         `json:"user_text"`
	AssistantText string         `json:"assistant_text"`
	Guards        []guard.Result `json:"guard_events"`
	Done          bool           `json:"done"`
	Approval      string         `json:"approval,omitempty"`
	PrevHash      string         `json:"prev_hash,omitempty"`
}

// Blocked reports whether any guard blocked the reply.
func (e Event) Blocked() bool {
	for _, g := range e.Guards {
		if g.Action == guard.Block {
			return true
		}
	}
	return false
}

// has reports whether any guard produced disposition d.
func (e Event) has(d guard.Disposition) bool {
	for _, g := range e.Guards {
		if g.Action == d {
			return true
		}
	}
	return false
}
