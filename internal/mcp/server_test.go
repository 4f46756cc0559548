package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/turnguard/internal/config"
	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/memory"
	"github.com/ppiankov/turnguard/internal/session"
)

const testPolicy = `
id: approvals
version: "1.0.0"
intents:
  - id: start
    allowed_next: [contract_review, goodbye]
  - id: contract_review
    human_approval: legal
    allowed_next: [goodbye]
  - id: goodbye
    allowed_next: []
guards:
  - id: pii
    kind: pii
    mode: redact
  - id: legal
    kind: blocklist
    mode: block
    params:
      terms: [sue]
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.PolicyPath = filepath.Join(dir, "policy.yaml")
	cfg.Audit = filepath.Join(dir, "audit.jsonl")
	cfg.ApprovalDir = filepath.Join(dir, "pending")
	if err := os.WriteFile(cfg.PolicyPath, []byte(testPolicy), 0644); err != nil {
		t.Fatal(err)
	}
	rt, err := session.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("failed to build runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return New(rt, nil)
}

func startSession(t *testing.T, s *Server) string {
	t.Helper()
	_, out, err := s.handleStart(context.Background(), &mcpsdk.CallToolRequest{}, StartInput{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return out.SessionID
}

func TestStartAndTurn(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, start, err := s.handleStart(ctx, &mcpsdk.CallToolRequest{}, StartInput{})
	if err != nil {
		t.Fatal(err)
	}
	if start.Intent != "start" || start.PolicyID != "approvals" || len(start.AllowedNext) != 2 {
		t.Fatalf("start = %+v", start)
	}

	result, out, err := s.handleTurn(ctx, &mcpsdk.CallToolRequest{}, TurnInput{SessionID: start.SessionID, Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Turn != 1 || out.Intent != "contract_review" || out.Approval != "legal" {
		t.Errorf("turn = %+v", out)
	}

	_, pending, err := s.handlePending(ctx, &mcpsdk.CallToolRequest{}, PendingInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending.Approvals) != 1 || pending.Approvals[0].Role != "legal" || pending.Approvals[0].SessionID != start.SessionID {
		t.Errorf("pending = %+v", pending)
	}
}

func TestTurnUnknownSession(t *testing.T) {
	s := newTestServer(t)
	if _, _, err := s.handleTurn(context.Background(), &mcpsdk.CallToolRequest{}, TurnInput{SessionID: "ghost", Text: "x"}); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestGuardCheck(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, out, err := s.handleGuardCheck(ctx, &mcpsdk.CallToolRequest{}, GuardCheckInput{Text: "mail a@b.com"})
	if err != nil {
		t.Fatal(err)
	}
	if result != nil && result.IsError {
		t.Error("redaction must not be reported as an error")
	}
	if out.Text != "mail [REDACTED EMAIL]" {
		t.Errorf("text = %q", out.Text)
	}

	result, out, _ = s.handleGuardCheck(ctx, &mcpsdk.CallToolRequest{}, GuardCheckInput{Text: "you should sue"})
	if result == nil || !result.IsError {
		t.Error("expected IsError result for a blocked text")
	}
	if !out.Blocked || out.Text != guard.SafeRefusal {
		t.Errorf("outcome = %+v", out)
	}
}

func TestAllowedAndHistory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := startSession(t, s)
	s.handleTurn(ctx, &mcpsdk.CallToolRequest{}, TurnInput{SessionID: id, Text: "first"})

	_, allowed, err := s.handleAllowed(ctx, &mcpsdk.CallToolRequest{}, SessionInput{SessionID: id})
	if err != nil {
		t.Fatal(err)
	}
	if allowed.Intent != "contract_review" || len(allowed.AllowedNext) != 1 || allowed.Done {
		t.Errorf("allowed = %+v", allowed)
	}

	_, snap, err := s.handleHistory(ctx, &mcpsdk.CallToolRequest{}, SessionInput{SessionID: id})
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.History) != 2 || snap.History[0].Role != memory.RoleUser || snap.History[0].Content != "first" {
		t.Errorf("history = %+v", snap.History)
	}
}

func TestEnd(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := startSession(t, s)

	_, out, err := s.handleEnd(ctx, &mcpsdk.CallToolRequest{}, SessionInput{SessionID: id})
	if err != nil || out.SessionID != id {
		t.Fatalf("end = %+v, %v", out, err)
	}
	if _, _, err := s.handleAllowed(ctx, &mcpsdk.CallToolRequest{}, SessionInput{SessionID: id}); err == nil {
		t.Error("ended session must be gone")
	}
}
