package turnguardv1

import (
	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/turn"
)

type StartSessionRequest struct{}

type StartSessionResponse struct {
	SessionID     string   `json:"session_id"`
	PolicyID      string   `json:"policy_id"`
	PolicyVersion string   `json:"policy_version"`
	PolicyHash    string   `json:"policy_hash"`
	Intent        string   `json:"intent"`
	AllowedNext   []string `json:"allowed_next"`
}

type RunTurnRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type RunTurnResponse struct {
	SessionID   string         `json:"session_id"`
	Turn        int            `json:"turn"`
	Intent      string         `json:"intent"`
	Text        string         `json:"text"`
	GuardEvents []guard.Result `json:"guard_events"`
	AllowedNext []string       `json:"allowed_next"`
	Done        bool           `json:"done"`
	Clamped     bool           `json:"clamped,omitempty"`
	Proposed    string         `json:"proposed,omitempty"`
	Approval    string         `json:"approval,omitempty"`
}

// NewRunTurnResponse copies a turn result into its wire form.
func NewRunTurnResponse(sessionID string, r *turn.Result) RunTurnResponse {
	return RunTurnResponse{
		SessionID:   sessionID,
		Turn:        r.Turn,
		Intent:      r.Intent,
		Text:        r.Text,
		GuardEvents: r.GuardEvents,
		AllowedNext: r.AllowedNext,
		Done:        r.Done,
		Clamped:     r.Clamped,
		Proposed:    r.Proposed,
		Approval:    r.Approval,
	}
}

type EndSessionRequest struct {
	SessionID string `json:"session_id"`
}

type EndSessionResponse struct {
	SessionID string `json:"session_id"`
	Turns     int    `json:"turns"`
	Intent    string `json:"intent"`
}

type AllowedRequest struct {
	SessionID string `json:"session_id"`
}

type AllowedResponse struct {
	SessionID   string   `json:"session_id"`
	Intent      string   `json:"intent"`
	AllowedNext []string `json:"allowed_next"`
	Done        bool     `json:"done"`
}

// CheckGuardsRequest runs the active policy's guards over Text without a session.
type CheckGuardsRequest struct {
	Text string `json:"text"`
}

type CheckGuardsResponse = guard.Outcome
