package oracle

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/turnguard/internal/memory"
)

// ErrScriptExhausted is returned when a Scripted oracle has no queued answer
// and no fallback behaviour configured.
var ErrScriptExhausted = errors.New("oracle: script exhausted")

// Step is one queued answer. A non-nil Err is returned instead of the value.
type Step struct {
	Value string
	Err   error
}

// Scripted replays queued intent choices and drafts in order. When a queue
// runs dry it behaves like Mock. Safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	intents []Step
	drafts  []Step
	strict  bool

	chooseCalls int
	draftCalls  int
	lastAllowed []string
	lastSystem  string
	lastHistory []memory.Message
}

// NewScripted returns an empty script.
func NewScripted() *Scripted { return &Scripted{} }

// Strict makes an empty queue an error instead of a Mock fallback.
func (s *Scripted) Strict() *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strict = true
	return s
}

// Choose queues intent answers.
func (s *Scripted) Choose(intents ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range intents {
		s.intents = append(s.intents, Step{Value: v})
	}
	return s
}

// ChooseErr queues a failing intent call.
func (s *Scripted) ChooseErr(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, Step{Err: err})
	return s
}

// Draft queues draft answers.
func (s *Scripted) Draft(drafts ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range drafts {
		s.drafts = append(s.drafts, Step{Value: v})
	}
	return s
}

// DraftErr queues a failing draft call.
func (s *Scripted) DraftErr(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, Step{Err: err})
	return s
}

func (s *Scripted) ChooseNextIntent(ctx context.Context, allowed []string, c IntentContext) (string, error) {
	s.mu.Lock()
	s.chooseCalls++
	s.lastAllowed = append([]string(nil), allowed...)
	step, ok := pop(&s.intents)
	strict := s.strict
	s.mu.Unlock()

	if !ok {
		if strict {
			return "", ErrScriptExhausted
		}
		return NewMock().ChooseNextIntent(ctx, allowed, c)
	}
	return step.Value, step.Err
}

func (s *Scripted) DraftReply(ctx context.Context, system string, history []memory.Message, c DraftContext) (string, error) {
	s.mu.Lock()
	s.draftCalls++
	s.lastSystem = system
	s.lastHistory = append([]memory.Message(nil), history...)
	step, ok := pop(&s.drafts)
	strict := s.strict
	s.mu.Unlock()

	if !ok {
		if strict {
			return "", ErrScriptExhausted
		}
		return NewMock().DraftReply(ctx, system, history, c)
	}
	return step.Value, step.Err
}

// Calls returns how many times each method was invoked.
func (s *Scripted) Calls() (choose, draft int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chooseCalls, s.draftCalls
}

// LastAllowed returns the allowed list passed to the latest ChooseNextIntent.
func (s *Scripted) LastAllowed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lastAllowed...)
}

// LastDraftInput returns the system prompt and history of the latest DraftReply.
func (s *Scripted) LastDraftInput() (string, []memory.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSystem, append([]memory.Message(nil), s.lastHistory...)
}

func pop(q *[]Step) (Step, bool) {
	if len(*q) == 0 {
		return Step{}, false
	}
	st := (*q)[0]
	*q = (*q)[1:]
	return st, true
}
