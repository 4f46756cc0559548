package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/memory"
)

// --- Input/Output types ---

// StartInput is empty; sessions always begin at the policy's default intent.
type StartInput struct{}

// StartOutput describes a new session.
type StartOutput struct {
	SessionID   string   `json:"session_id"`
	PolicyID    string   `json:"policy_id"`
	Intent      string   `json:"intent"`
	AllowedNext []string `json:"allowed_next"`
}

// TurnInput defines parameters for the turnguard_turn tool.
type TurnInput struct {
	SessionID string `json:"session_id" jsonschema:"session id from turnguard_start"`
	Text      string `json:"text" jsonschema:"the user message"`
}

// TurnOutput is the guarded reply.
type TurnOutput struct {
	Turn        int            `json:"turn"`
	Intent      string         `json:"intent"`
	Text        string         `json:"text"`
	Blocked     bool           `json:"blocked,omitempty"`
	Clamped     bool           `json:"clamped,omitempty"`
	Done        bool           `json:"done"`
	AllowedNext []string       `json:"allowed_next"`
	GuardEvents []guard.Result `json:"guard_events"`
	Approval    string         `json:"approval,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// GuardCheckInput defines parameters for the turnguard_guard_check tool.
type GuardCheckInput struct {
	Text string `json:"text" jsonschema:"text to check against the policy guards"`
}

// SessionInput names a session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"session id from turnguard_start"`
}

// AllowedOutput lists legal successors of the current intent.
type AllowedOutput struct {
	Intent      string   `json:"intent"`
	AllowedNext []string `json:"allowed_next"`
	Done        bool     `json:"done"`
}

// EndOutput summarizes an ended session.
type EndOutput struct {
	SessionID string `json:"session_id"`
	Turns     int    `json:"turns"`
	Intent    string `json:"intent"`
}

// PendingInput is empty; no parameters needed.
type PendingInput struct{}

// PendingOutput lists pending approvals.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes a single approval request.
type PendingItem struct {
	Key       string `json:"key"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	Intent    string `json:"intent"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// --- Handlers ---

func (s *Server) handleStart(ctx context.Context, req *mcpsdk.CallToolRequest, input StartInput) (*mcpsdk.CallToolResult, StartOutput, error) {
	sess, err := s.rt.Start(ctx)
	if err != nil {
		return nil, StartOutput{}, err
	}
	return nil, StartOutput{
		SessionID:   sess.ID,
		PolicyID:    sess.Policy().ID,
		Intent:      sess.Memory().Intent(),
		AllowedNext: sess.Allowed(),
	}, nil
}

func (s *Server) handleTurn(ctx context.Context, req *mcpsdk.CallToolRequest, input TurnInput) (*mcpsdk.CallToolResult, TurnOutput, error) {
	sess, err := s.rt.Get(input.SessionID)
	if err != nil {
		return nil, TurnOutput{}, err
	}
	res, err := sess.RunTurn(ctx, input.Text)
	if err != nil {
		// Turn failures are reported to the model, not as protocol errors.
		return &mcpsdk.CallToolResult{IsError: true}, TurnOutput{Error: err.Error()}, nil
	}
	return nil, TurnOutput{
		Turn:        res.Turn,
		Intent:      res.Intent,
		Text:        res.Text,
		Blocked:     res.Blocked(),
		Clamped:     res.Clamped,
		Done:        res.Done,
		AllowedNext: res.AllowedNext,
		GuardEvents: res.GuardEvents,
		Approval:    res.Approval,
	}, nil
}

func (s *Server) handleGuardCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input GuardCheckInput) (*mcpsdk.CallToolResult, guard.Outcome, error) {
	p, _ := s.rt.Policy()
	out := s.rt.Engine().Run(input.Text, p.Guards)
	if out.Blocked {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleAllowed(ctx context.Context, req *mcpsdk.CallToolRequest, input SessionInput) (*mcpsdk.CallToolResult, AllowedOutput, error) {
	sess, err := s.rt.Get(input.SessionID)
	if err != nil {
		return nil, AllowedOutput{}, err
	}
	return nil, AllowedOutput{
		Intent:      sess.Memory().Intent(),
		AllowedNext: sess.Allowed(),
		Done:        sess.Done(),
	}, nil
}

func (s *Server) handleHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input SessionInput) (*mcpsdk.CallToolResult, memory.Snapshot, error) {
	sess, err := s.rt.Get(input.SessionID)
	if err != nil {
		return nil, memory.Snapshot{}, err
	}
	return nil, sess.Memory().Snapshot(), nil
}

func (s *Server) handleEnd(ctx context.Context, req *mcpsdk.CallToolRequest, input SessionInput) (*mcpsdk.CallToolResult, EndOutput, error) {
	sess, err := s.rt.Get(input.SessionID)
	if err != nil {
		return nil, EndOutput{}, err
	}
	if err := s.rt.End(input.SessionID); err != nil {
		return nil, EndOutput{}, err
	}
	return nil, EndOutput{
		SessionID: sess.ID,
		Turns:     sess.Memory().Turns(),
		Intent:    sess.Memory().Intent(),
	}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	if s.rt.Approvals == nil {
		return nil, PendingOutput{}, fmt.Errorf("approval store not configured")
	}
	list, err := s.rt.Approvals.Pending()
	if err != nil {
		return nil, PendingOutput{}, err
	}

	items := make([]PendingItem, len(list))
	for i, a := range list {
		items[i] = PendingItem{
			Key:       a.Key,
			Role:      a.Role,
			SessionID: a.SessionID,
			Intent:    a.Intent,
			Reason:    a.Reason,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, PendingOutput{Approvals: items}, nil
}
