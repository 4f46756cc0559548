package memory

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	m := New("s1", "start")
	if m.Intent() != "start" || m.Len() != 0 || m.Turns() != 0 {
		t.Fatalf("unexpected fresh memory: intent=%s len=%d", m.Intent(), m.Len())
	}
	if len(m.Slots()) != 0 {
		t.Error("slots should start empty")
	}
}

func TestCommit(t *testing.T) {
	m := New("s1", "start")
	m.Commit("hi", "hello", "eligibility")
	m.Commit("am I eligible?", "checking", "goodbye")

	if m.Intent() != "goodbye" {
		t.Errorf("intent = %s", m.Intent())
	}
	h := m.History()
	if len(h) != 4 || m.Turns() != 2 {
		t.Fatalf("expected 4 entries, got %d", len(h))
	}
	wantRoles := []Role{RoleUser, RoleAssistant, RoleUser, RoleAssistant}
	for i, r := range wantRoles {
		if h[i].Role != r {
			t.Errorf("entry %d role = %s, want %s", i, h[i].Role, r)
		}
	}
	if h[2].Content != "am I eligible?" {
		t.Errorf("entry 2 = %q", h[2].Content)
	}
}

func TestHistoryIsCopy(t *testing.T) {
	m := New("s1", "start")
	m.Commit("a", "b", "start")
	h := m.History()
	h[0].Content = "tampered"
	if m.History()[0].Content != "a" {
		t.Fatal("History must return a copy")
	}

	m.SetSlot("employee_email", "x")
	s := m.Slots()
	s["employee_email"] = "y"
	if m.Slots()["employee_email"] != "x" {
		t.Fatal("Slots must return a copy")
	}
}

func TestConcurrentCommitsStayPaired(t *testing.T) {
	m := New("s1", "start")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Commit("u", "a", "start")
		}()
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n := m.Len(); n%2 != 0 {
				t.Errorf("observed odd history length %d", n)
			}
		}()
	}
	wg.Wait()

	h := m.History()
	if len(h) != 100 {
		t.Fatalf("expected 100 entries, got %d", len(h))
	}
	for i := 0; i < len(h); i += 2 {
		if h[i].Role != RoleUser || h[i+1].Role != RoleAssistant {
			t.Fatalf("entries %d/%d are not a user/assistant pair", i, i+1)
		}
	}
}

func TestSnapshotJSON(t *testing.T) {
	m := New("s1", "start")
	empty, err := json.Marshal(m.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != `{"session_id":"s1","intent":"start","history":[]}` {
		t.Errorf("empty snapshot = %s", empty)
	}

	m.Commit("hi", "hello", "eligibility")
	var back Snapshot
	data, _ := json.Marshal(m.Snapshot())
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Intent != "eligibility" || len(back.History) != 2 {
		t.Errorf("snapshot = %+v", back)
	}
}

func TestWithUserAndLastUser(t *testing.T) {
	base := []Message{{Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}}
	w := WithUser(base, "c")
	if len(base) != 2 || len(w) != 3 {
		t.Fatalf("WithUser modified input or wrong length: %d %d", len(base), len(w))
	}
	if LastUser(w) != "c" || LastUser(base) != "a" || LastUser(nil) != "" {
		t.Error("LastUser returned wrong entry")
	}
}
