package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/turnguard/internal/audit"
	"github.com/ppiankov/turnguard/internal/guard"
)

func init() {
	retryDelay = 10 * time.Millisecond
}

type recorder struct {
	mu     sync.Mutex
	events []AlertEvent
	srv    *httptest.Server
}

func newRecorder(t *testing.T) *recorder {
	t.Helper()
	r := &recorder{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var ev AlertEvent
		_ = json.NewDecoder(req.Body).Decode(&ev)
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *recorder) got() []AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AlertEvent(nil), r.events...)
}

func blockedTurn() audit.Event {
	return audit.Event{
		Timestamp: "2026-01-15T14:00:00.000Z",
		SessionID: "s-1",
		Turn:      3,
		PolicyID:  "hr_onboarding",
		Intent:    "eligibility",
		Guards: []guard.Result{
			{RuleID: "pii_redact", Kind: "pii", Passed: true, Action: guard.Redact, Message: "PII redacted"},
			{RuleID: "legal_advice", Kind: "blocklist", Action: guard.Block, Message: "Blocked term 'sue'"},
		},
	}
}

func TestFromTurn(t *testing.T) {
	ev := blockedTurn()
	ev.Clamped = true
	ev.Proposed = "contract_review"
	ev.Approval = "legal"
	ev.Done = true

	got := FromTurn(ev)
	want := []string{TypeRedact, TypeBlock, TypeClamp, TypeApproval, TypeDone}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Type != w {
			t.Errorf("event %d type = %s, want %s", i, got[i].Type, w)
		}
		if got[i].SessionID != "s-1" || got[i].Turn != 3 {
			t.Errorf("event %d lost turn identity: %+v", i, got[i])
		}
	}
	if got[1].RuleID != "legal_advice" || got[1].Reason != "Blocked term 'sue'" {
		t.Errorf("block event = %+v", got[1])
	}
}

func TestFromTurnQuiet(t *testing.T) {
	ev := audit.Event{Guards: []guard.Result{{RuleID: "x", Action: guard.Allow, Passed: true}}}
	if got := FromTurn(ev); len(got) != 0 {
		t.Errorf("allow-only turn produced alerts: %+v", got)
	}
}

func TestDispatcherAsSink(t *testing.T) {
	rec := newRecorder(t)
	d := NewDispatcher([]AlertConfig{{URL: rec.srv.URL, Format: "generic", Events: []string{TypeBlock}}}, nil)

	if err := d.Append(context.Background(), blockedTurn()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	got := rec.got()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Type != TypeBlock || got[0].RuleID != "legal_advice" {
		t.Errorf("delivered %+v", got[0])
	}
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	rec1 := newRecorder(t)
	rec2 := newRecorder(t)

	d := NewDispatcher([]AlertConfig{
		{URL: rec1.srv.URL, Events: []string{TypeBlock}},
		{URL: rec2.srv.URL, Events: []string{TypeBlock, TypeRedact}},
	}, nil)

	_ = d.Append(context.Background(), blockedTurn())
	d.Close()

	if n := len(rec1.got()); n != 1 {
		t.Errorf("webhook 1: %d deliveries, want 1", n)
	}
	if n := len(rec2.got()); n != 2 {
		t.Errorf("webhook 2: %d deliveries, want 2", n)
	}
}

func TestDeliveryFailureDoesNotFailAppend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewDispatcher([]AlertConfig{{URL: srv.URL, Events: []string{TypeBlock}}}, nil)
	if err := d.Append(context.Background(), blockedTurn()); err != nil {
		t.Fatalf("append must not surface delivery errors: %v", err)
	}
	d.Close()
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Send(context.Background(), AlertConfig{URL: srv.URL, Format: "generic"}, AlertEvent{Type: TypeBlock})
	if err != nil {
		t.Errorf("expected success after retries, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := Send(context.Background(), AlertConfig{URL: srv.URL, Format: "generic"}, AlertEvent{Type: TypeBlock})
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Status != http.StatusBadRequest {
		t.Errorf("expected RejectedError with 400, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", attempts.Load())
	}
}

func TestCustomHeaders(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := AlertConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer x"}}
	if err := Send(context.Background(), cfg, AlertEvent{Type: TypeDone}); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer x" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestFormatSlackBlockKit(t *testing.T) {
	data, err := FormatPayload("slack", FromTurn(blockedTurn())[1])
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("slack format is not valid JSON: %v", err)
	}
	blocks, ok := parsed["blocks"].([]any)
	if !ok || len(blocks) < 2 {
		t.Fatalf("expected header and section blocks, got %v", parsed["blocks"])
	}
	header, _ := blocks[0].(map[string]any)
	text, _ := header["text"].(map[string]any)
	if text["text"] != "turnguard: block" {
		t.Errorf("header text = %v", text["text"])
	}
	section, _ := blocks[1].(map[string]any)
	if fields, ok := section["fields"].([]any); !ok || len(fields) != 4 {
		t.Errorf("expected 4 fields in section, got %v", section["fields"])
	}
}

func TestFormatPagerDutySeverity(t *testing.T) {
	tests := map[string]string{
		TypeBlock:    "error",
		TypeApproval: "warning",
		TypeClamp:    "warning",
		TypeRedact:   "info",
	}
	for typ, want := range tests {
		data, err := FormatPayload("pagerduty", AlertEvent{Type: typ})
		if err != nil {
			t.Fatal(err)
		}
		var parsed struct {
			Action  string         `json:"event_action"`
			Payload map[string]any `json:"payload"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			t.Fatal(err)
		}
		if parsed.Action != "trigger" || parsed.Payload["severity"] != want || parsed.Payload["source"] != "turnguard" {
			t.Errorf("%s: got %+v", typ, parsed)
		}
	}
}

func TestNewDispatcherNilOnEmpty(t *testing.T) {
	if NewDispatcher(nil, nil) != nil {
		t.Error("expected nil dispatcher for empty configs")
	}
	if NewDispatcher([]AlertConfig{}, nil) != nil {
		t.Error("expected nil dispatcher for zero-length configs")
	}
}

func TestAlertIdentityHeaders(t *testing.T) {
	var id, typ string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = r.Header.Get(HeaderAlertID)
		typ = r.Header.Get(HeaderAlertType)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ev := AlertEvent{SessionID: "s-1", Turn: 3, Type: TypeBlock, RuleID: "legal_advice"}
	if err := Send(context.Background(), AlertConfig{URL: srv.URL}, ev); err != nil {
		t.Fatal(err)
	}
	if id != "s-1/3/block/legal_advice" || typ != TypeBlock {
		t.Errorf("headers: id=%q type=%q", id, typ)
	}
	if got := (AlertEvent{SessionID: "s-1", Turn: 4, Type: TypeDone}).ID(); got != "s-1/4/done" {
		t.Errorf("ID without rule = %q", got)
	}
}

func TestSendStopsRetryingWhenContextEnds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	saved := retryDelay
	retryDelay = time.Hour
	defer func() { retryDelay = saved }()
	go func() {
		for attempts.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := Send(ctx, AlertConfig{URL: srv.URL}, AlertEvent{Type: TypeBlock})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d", attempts.Load())
	}
}
