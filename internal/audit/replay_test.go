package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/turnguard/internal/guard"
)

// writeTestLog creates a temp audit log with known events for testing.
func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	base := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)
	ts := func(s int) string { return base.Add(time.Duration(s) * time.Second).Format(TimestampFormat) }

	redact := guard.Result{RuleID: "pii_redact", Passed: true, Action: guard.Redact}
	warn := guard.Result{RuleID: "compensation_terms", Passed: true, Action: guard.Warn}
	block := guard.Result{RuleID: "legal_advice", Action: guard.Block}

	events := []Event{
		{Timestamp: ts(0), SessionID: "s-aaa", Turn: 1, Intent: "eligibility", AssistantText: "welcome"},
		{Timestamp: ts(2), SessionID: "s-aaa", Turn: 2, Intent: "collect_documents", Guards: []guard.Result{redact}, AssistantText: "mail [REDACTED EMAIL]"},
		{Timestamp: ts(4), SessionID: "s-bbb", Turn: 1, Intent: "out_of_scope"},
		{Timestamp: ts(6), SessionID: "s-aaa", Turn: 3, Intent: "contract_review", Clamped: true, Proposed: "payroll", Guards: []guard.Result{warn}, Approval: "legal"},
		{Timestamp: ts(8), SessionID: "s-aaa", Turn: 4, Intent: "goodbye", Guards: []guard.Result{warn, block}, AssistantText: guard.SafeRefusal, Done: true},
	}

	for _, e := range events {
		if err := log.Append(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}

	return path
}

func TestReplayFiltersBySession(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 4 {
		t.Errorf("expected 4 events for s-aaa, got %d", len(result.Events))
	}
	for i, e := range result.Events {
		if e.SessionID != "s-aaa" {
			t.Errorf("unexpected session: %s", e.SessionID)
		}
		if e.Turn != i+1 {
			t.Errorf("events out of order: turn %d at %d", e.Turn, i)
		}
	}
}

func TestReplayAllSessions(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 5 {
		t.Errorf("expected 5 events, got %d", len(result.Events))
	}
}

func TestReplaySummary(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}
	s := result.Summary
	if s.Turns != 4 || s.BlockedCount != 1 || s.RedactedCount != 1 || s.WarnedCount != 2 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.ClampedCount != 1 || s.DoneCount != 1 || s.ApprovalCount != 1 {
		t.Errorf("unexpected flags: %+v", s)
	}
	if s.FinalIntent != "goodbye" {
		t.Errorf("final intent = %s", s.FinalIntent)
	}
	if s.FirstTimestamp != "2025-01-15T14:00:00.000Z" || s.LastTimestamp != "2025-01-15T14:00:08.000Z" {
		t.Errorf("timestamps = %s .. %s", s.FirstTimestamp, s.LastTimestamp)
	}
}

func TestReplayTimeRange(t *testing.T) {
	path := writeTestLog(t)

	from := time.Date(2025, 1, 15, 14, 0, 5, 0, time.UTC)
	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa", From: from})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 2 {
		t.Errorf("expected 2 events after from filter, got %d", len(result.Events))
	}

	to := time.Date(2025, 1, 15, 14, 0, 3, 0, time.UTC)
	result, err = Replay(path, ReplayFilter{SessionID: "s-aaa", To: to})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 2 {
		t.Errorf("expected 2 events before to filter, got %d", len(result.Events))
	}
}

func TestReplayUnknownSession(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{SessionID: "s-none"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 0 || result.Summary.Turns != 0 {
		t.Errorf("expected empty result, got %+v", result.Summary)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := Replay(filepath.Join(t.TempDir(), "nope.jsonl"), ReplayFilter{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTail(t *testing.T) {
	path := writeTestLog(t)
	events, err := Tail(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[1].Intent != "goodbye" {
		t.Errorf("tail = %+v", events)
	}
	all, _ := Tail(path, 0)
	if len(all) != 5 {
		t.Errorf("tail 0 should return everything, got %d", len(all))
	}
}
