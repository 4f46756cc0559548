package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ppiankov/turnguard/internal/audit"
	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/oracle"
	"github.com/ppiankov/turnguard/internal/policy"
	"github.com/ppiankov/turnguard/internal/session"
)

func newLocalChat(t *testing.T, o oracle.Oracle) (*localChat, *audit.MemorySink) {
	t.Helper()
	p := policy.Default()
	hash, err := policy.Hash(p)
	if err != nil {
		t.Fatal(err)
	}
	sink := audit.NewMemorySink()
	m := session.NewManager(p, hash, session.Options{Oracle: o, Sink: sink})
	return &localChat{m: m}, sink
}

func runLoop(t *testing.T, b chatBackend, input string) string {
	t.Helper()
	var out bytes.Buffer
	if err := chatLoop(context.Background(), strings.NewReader(input), &out, b, newChatStyles(false)); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}
	return out.String()
}

func TestChatLoopTurnsAndCommands(t *testing.T) {
	script := oracle.NewScripted().
		Choose("eligibility", "collect_documents").
		Draft("Welcome aboard.", "Send your passport scan to hr@corp.example")
	b, sink := newLocalChat(t, script)

	out := runLoop(t, b, "hello\n/allowed\nwhere do I send my passport?\n/history\nexit\n")

	for _, want := range []string{
		"policy hr_onboarding 1.0.0",
		"Agent[eligibility]: Welcome aboard.",
		"intent eligibility -> [collect_documents, out_of_scope, goodbye]",
		"Agent[collect_documents]: Send your passport scan to [REDACTED EMAIL]",
		"(guard: pii_redact -> redact: PII redacted)",
		"user:     hello",
		"assistant: Welcome aboard.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if n := len(sink.Events()); n != 2 {
		t.Errorf("audit events = %d, want 2", n)
	}
	if b.m.Len() != 0 {
		t.Error("session should be ended when the loop returns")
	}
}

func TestChatLoopBlockedReply(t *testing.T) {
	script := oracle.NewScripted().Choose("eligibility").Draft("Honestly you should sue them.")
	b, _ := newLocalChat(t, script)

	out := runLoop(t, b, "my manager is unfair\nquit\n")
	if !strings.Contains(out, "Agent[eligibility]: "+guard.SafeRefusal) {
		t.Errorf("blocked reply not replaced:\n%s", out)
	}
	if !strings.Contains(out, "(guard: legal_advice -> block: Blocked term 'sue')") {
		t.Errorf("block event not shown:\n%s", out)
	}
}

func TestChatLoopEndsOnTerminalIntent(t *testing.T) {
	script := oracle.NewScripted().Choose("eligibility", "goodbye").Draft("Hi.", "Bye.")
	b, _ := newLocalChat(t, script)

	out := runLoop(t, b, "hi\nthanks, that's all\nthis line is never read\n")
	if !strings.Contains(out, "Agent[goodbye]: Bye.") || !strings.Contains(out, "Conversation ended.") {
		t.Errorf("terminal turn not reported:\n%s", out)
	}
	if strings.Count(out, "Agent[") != 2 {
		t.Errorf("loop kept reading after the conversation ended:\n%s", out)
	}
}

func TestChatLoopTurnErrorKeepsSession(t *testing.T) {
	script := oracle.NewScripted().ChooseErr(context.DeadlineExceeded).Choose("eligibility").Draft("Back.")
	b, sink := newLocalChat(t, script)

	out := runLoop(t, b, "first\nsecond\n")
	if !strings.Contains(out, "turn failed:") {
		t.Errorf("failure not reported:\n%s", out)
	}
	if !strings.Contains(out, "Agent[eligibility]: Back.") {
		t.Errorf("session unusable after failure:\n%s", out)
	}
	if n := len(sink.Events()); n != 1 {
		t.Errorf("audit events = %d, want 1", n)
	}
}

func TestChatLoopEOF(t *testing.T) {
	b, _ := newLocalChat(t, oracle.NewMock())
	out := runLoop(t, b, "")
	if !strings.Contains(out, "You: ") {
		t.Errorf("prompt not printed:\n%s", out)
	}
}

func TestRemoteChatHistoryUnavailable(t *testing.T) {
	if _, ok := (&remoteChat{}).History(); ok {
		t.Error("remote backend cannot show history")
	}
}
