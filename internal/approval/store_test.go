package approval

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func ticket(key string) Ticket {
	return Ticket{Key: key, Role: "legal", SessionID: "s1", Intent: "contract_review", PolicyID: "hr", Reason: "turn 3 entered contract_review"}
}

func TestRequestCreatesFile(t *testing.T) {
	s := newTestStore(t)
	if err := s.Request(ticket("s1.contract_review")); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	a, err := s.read("s1.contract_review")
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if a.Status != StatusPending {
		t.Errorf("expected status=pending, got %s", a.Status)
	}
	if a.Role != "legal" || a.SessionID != "s1" || a.Intent != "contract_review" || a.PolicyID != "hr" {
		t.Errorf("unexpected ticket: %+v", a)
	}
}

func TestRequestDerivesKey(t *testing.T) {
	s := newTestStore(t)
	tk := ticket("")
	if err := s.Request(tk); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("s1.contract_review"); err != nil {
		t.Fatalf("derived key not stored: %v", err)
	}
}

func TestRequestIdempotent(t *testing.T) {
	s := newTestStore(t)
	first := ticket("k1")
	second := ticket("k1")
	second.Reason = "other"
	s.Request(first)
	s.Approve("k1", 0, "ok")
	s.Request(second)

	a, _ := s.read("k1")
	if a.Reason != first.Reason || a.Status != StatusApproved {
		t.Errorf("re-request must not reset the ticket, got %+v", a)
	}
}

func TestTicketKey(t *testing.T) {
	tests := map[[2]string]string{
		{"3f2a-11", "contract_review"}: "3f2a-11.contract_review",
		{"s/../x", "a b"}:              "s__x.a_b",
	}
	for in, want := range tests {
		got := TicketKey(in[0], in[1])
		if got != want {
			t.Errorf("TicketKey(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
		if err := validateKey(got); err != nil {
			t.Errorf("TicketKey produced invalid key %q: %v", got, err)
		}
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"../etc", "a/b", "a..b"} {
		if err := s.Request(ticket(key)); err == nil || !strings.Contains(err.Error(), "invalid approval key") {
			t.Errorf("key %q should be rejected, got %v", key, err)
		}
	}
}

func TestApproveTimeLimited(t *testing.T) {
	s := newTestStore(t)
	s.Request(ticket("k1"))
	if err := s.Approve("k1", time.Hour, "fine"); err != nil {
		t.Fatal(err)
	}
	a, _ := s.Get("k1")
	if a.ExpiresAt == nil || a.Note != "fine" {
		t.Errorf("expected expiry and note, got %+v", a)
	}
	if st, _ := s.Check("k1"); st != StatusApproved {
		t.Errorf("status = %s", st)
	}
}

func TestCheckExpired(t *testing.T) {
	s := newTestStore(t)
	s.Request(ticket("k1"))
	s.Approve("k1", time.Millisecond, "")
	time.Sleep(10 * time.Millisecond)

	st, err := s.Check("k1")
	if err != nil {
		t.Fatal(err)
	}
	if st != StatusExpired {
		t.Errorf("expected expired, got %s", st)
	}
}

func TestDeny(t *testing.T) {
	s := newTestStore(t)
	s.Request(ticket("k1"))
	if err := s.Deny("k1", "not now"); err != nil {
		t.Fatal(err)
	}
	if st, _ := s.Check("k1"); st != StatusDenied {
		t.Errorf("status = %s", st)
	}
}

func TestCheckNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Check("missing"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestListAndPending(t *testing.T) {
	s := newTestStore(t)
	s.Request(ticket("k1"))
	s.Request(ticket("k2"))
	s.Request(ticket("k3"))
	s.Deny("k2", "")

	list, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 tickets, got %d", len(list))
	}
	pending, _ := s.Pending()
	if len(pending) != 2 {
		t.Errorf("expected 2 pending, got %d", len(pending))
	}
}

func TestCleanup(t *testing.T) {
	s := newTestStore(t)
	s.Request(ticket("k1"))
	s.Request(ticket("k2"))

	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	list, _ := s.List()
	if len(list) != 0 {
		t.Errorf("expected 0 after cleanup, got %d", len(list))
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Request(ticket("concurrent_key"))
			s.Check("concurrent_key")
		}()
	}
	wg.Wait()

	status, err := s.Check("concurrent_key")
	if err != nil {
		t.Fatalf("Check failed after concurrent access: %v", err)
	}
	if status != StatusPending {
		t.Errorf("expected pending, got %s", status)
	}
}

func TestResolveNonexistent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Approve("nonexistent", 0, ""); err == nil {
		t.Error("expected error for approving nonexistent key")
	}
	if err := s.Deny("nonexistent", ""); err == nil {
		t.Error("expected error for denying nonexistent key")
	}
}
