package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/ppiankov/turnguard/internal/audit"
	"github.com/ppiankov/turnguard/internal/oracle"
	"github.com/ppiankov/turnguard/internal/policy"
)

func newManager(t *testing.T) (*Manager, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	p := policy.Default()
	hash, err := policy.Hash(p)
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(p, hash, Options{Oracle: oracle.NewMock(), Sink: sink}), sink
}

func TestStartUsesUUID(t *testing.T) {
	m, _ := newManager(t)
	s, err := m.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("session id %q is not a uuid: %v", s.ID, err)
	}
	if s.SessionID() != s.ID {
		t.Error("orchestrator must be bound to the session id")
	}
	if s.Memory().Intent() != "start" {
		t.Errorf("intent = %s", s.Memory().Intent())
	}
}

func TestGetAndEnd(t *testing.T) {
	m, _ := newManager(t)
	s, _ := m.Start(context.Background())

	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if err := m.End(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after End = %v", err)
	}
	if err := m.End(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double End = %v", err)
	}
}

func TestSessionsKeepPolicyAcrossReload(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	old, _ := m.Start(ctx)

	next := policy.Default()
	next.ID = "hr_onboarding_v2"
	next.Version = "1.1.0"
	m.Reload(next, "sha256:v2")

	fresh, _ := m.Start(ctx)
	if old.Policy().ID != "hr_onboarding" || old.PolicyHash() == "sha256:v2" {
		t.Errorf("existing session saw reload: %s", old.Policy().ID)
	}
	if fresh.Policy().ID != "hr_onboarding_v2" || fresh.PolicyHash() != "sha256:v2" {
		t.Errorf("new session missed reload: %s", fresh.Policy().ID)
	}
	if p, h := m.Policy(); p != next || h != "sha256:v2" {
		t.Error("Policy() should return the reloaded snapshot")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	m, sink := newManager(t)
	ctx := context.Background()
	a, _ := m.Start(ctx)
	b, _ := m.Start(ctx)

	if _, err := a.RunTurn(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	if b.Memory().Len() != 0 {
		t.Error("turn in one session leaked into another")
	}
	evs := sink.Events()
	if len(evs) != 1 || evs[0].SessionID != a.ID {
		t.Errorf("events = %+v", evs)
	}
}

func TestConcurrentSessions(t *testing.T) {
	m, sink := newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Start(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < 3; j++ {
				if _, err := s.RunTurn(ctx, fmt.Sprintf("msg %d", j)); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if m.Len() != 10 {
		t.Errorf("Len = %d", m.Len())
	}
	perSession := map[string][]int{}
	for _, ev := range sink.Events() {
		perSession[ev.SessionID] = append(perSession[ev.SessionID], ev.Turn)
	}
	for id, turns := range perSession {
		for i, n := range turns {
			if n != i+1 {
				t.Fatalf("session %s out of order: %v", id, turns)
			}
		}
	}
}

func TestList(t *testing.T) {
	ids := []string{"b", "a"}
	i := 0
	m := NewManager(policy.Default(), "h", Options{Oracle: oracle.NewMock(), NewID: func() string {
		id := ids[i]
		i++
		return id
	}})
	m.Start(context.Background())
	m.Start(context.Background())

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("list = %+v", list)
	}
	for _, in := range list {
		if in.PolicyID != "hr_onboarding" || in.Intent != "start" || in.Turns != 0 {
			t.Errorf("info = %+v", in)
		}
	}
}

func TestIDCollision(t *testing.T) {
	m := NewManager(policy.Default(), "h", Options{Oracle: oracle.NewMock(), NewID: func() string { return "same" }})
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(context.Background()); err == nil {
		t.Error("expected collision error")
	}
}

func TestStartCancelled(t *testing.T) {
	m, _ := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Start(ctx); err == nil {
		t.Error("expected context error")
	}
}
