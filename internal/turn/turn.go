// Package turn runs one conversational turn: pick the next intent inside the
// policy envelope, draft a reply, guard it, audit it, then commit it.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/turnguard/internal/approval"
	"github.com/ppiankov/turnguard/internal/audit"
	"github.com/ppiankov/turnguard/internal/graph"
	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/memory"
	"github.com/ppiankov/turnguard/internal/oracle"
	"github.com/ppiankov/turnguard/internal/policy"
)

// Turn-level failures. Neither leaves anything committed to memory.
var (
	ErrOracleUnavailable = errors.New("turn: oracle unavailable")
	ErrAuditFailed       = errors.New("turn: audit append failed")
)

// DefaultFallback is offered to the oracle when no intent is allowed.
const DefaultFallback = "goodbye"

// ApprovalRequester records that an intent needs off-system sign-off.
// It is informational and never changes the turn outcome.
type ApprovalRequester interface {
	Request(t approval.Ticket) error
}

// Config is scoped to one Orchestrator.
type Config struct {
	SystemPrompt string
	Fallback     string
	// Debug adds draft and guard detail to the per-turn log record.
	Debug     bool
	Logger    *slog.Logger
	Approvals ApprovalRequester
	// Now overrides the audit clock.
	Now func() time.Time
}

// Result is what a caller sees after a successful turn.
type Result struct {
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

// Blocked reports whether a guard replaced the reply.
func (r *Result) Blocked() bool {
	for _, g := range r.GuardEvents {
		if g.Action == guard.Block {
			return true
		}
	}
	return false
}

// Orchestrator drives one session. RunTurn calls are serialized.
type Orchestrator struct {
	mu     sync.Mutex
	policy *policy.Policy
	hash   string
	graph  *graph.Graph
	oracle oracle.Oracle
	sink   audit.Sink
	engine *guard.Engine
	memory *memory.Memory
	cfg    Config
	log    *slog.Logger
	tel    *telemetry
}

// New binds a fresh memory, positioned at the policy's default intent, to
// the given collaborators. The policy must not change afterwards. Every turn
// is recorded in sink; with a nil sink RunTurn fails with ErrAuditFailed.
func New(p *policy.Policy, policyHash string, o oracle.Oracle, sink audit.Sink, eng *guard.Engine, sessionID string, cfg Config) *Orchestrator {
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if eng == nil {
		eng = guard.NewEngine(guard.Options{})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		policy: p,
		hash:   policyHash,
		graph:  graph.New(p),
		oracle: o,
		sink:   sink,
		engine: eng,
		memory: memory.New(sessionID, p.DefaultIntent),
		cfg:    cfg,
		log:    logger.With("session", sessionID, "policy", p.ID),
		tel:    instruments(),
	}
}

// SessionID returns the session this orchestrator serves.
func (o *Orchestrator) SessionID() string { return o.memory.SessionID }

// Memory exposes the session memory for read access.
func (o *Orchestrator) Memory() *memory.Memory { return o.memory }

// Policy returns the policy snapshot bound at construction.
func (o *Orchestrator) Policy() *policy.Policy { return o.policy }

// PolicyHash returns the content hash of the bound policy.
func (o *Orchestrator) PolicyHash() string { return o.hash }

// Allowed returns the legal successors of the current intent.
func (o *Orchestrator) Allowed() []string {
	return o.graph.AllowedNext(o.memory.Intent())
}

// Done reports whether the current intent is terminal.
func (o *Orchestrator) Done() bool {
	return o.policy.IsEnd(o.memory.Intent())
}

// RunTurn processes one user message. On error nothing is committed to
// memory; an audit failure means the turn is not reported as complete.
// A guard block is a normal outcome, not an error.
func (o *Orchestrator) RunTurn(ctx context.Context, userText string) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.tel.tracer.Start(ctx, "turn.run",
		trace.WithAttributes(attribute.String("turnguard.session", o.SessionID())))
	defer span.End()

	res, err := o.run(ctx, userText)
	if err != nil {
		o.tel.failure.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log.ErrorContext(ctx, "turn failed", "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("turnguard.intent", res.Intent),
		attribute.Bool("turnguard.clamped", res.Clamped),
		attribute.Bool("turnguard.blocked", res.Blocked()),
		attribute.Bool("turnguard.done", res.Done),
	)
	o.tel.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", res.Intent)))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, userText string) (*Result, error) {
	if o.sink == nil {
		return nil, fmt.Errorf("%w: %w", ErrAuditFailed, audit.ErrNoSink)
	}
	current := o.memory.Intent()
	working := memory.WithUser(o.memory.History(), userText)
	allowed := o.graph.AllowedNext(current)

	proposed, err := o.oracle.ChooseNextIntent(ctx, slices.Clone(allowed), oracle.IntentContext{
		Current:  current,
		Fallback: o.cfg.Fallback,
		UserText: userText,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: choose intent: %w", ErrOracleUnavailable, err)
	}

	next := proposed
	clamped := false
	if len(allowed) > 0 && !slices.Contains(allowed, proposed) {
		next = allowed[0]
		clamped = true
		o.tel.clamps.Add(ctx, 1)
		o.log.WarnContext(ctx, "oracle proposed illegal transition, clamped",
			"from", current, "proposed", proposed, "committed", next, "allowed", allowed)
	}

	var description string
	if it, ok := o.policy.Intent(next); ok {
		description = it.Description
	}
	draft, err := o.oracle.DraftReply(ctx, o.cfg.SystemPrompt, working, oracle.DraftContext{
		Intent:      next,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: draft reply: %w", ErrOracleUnavailable, err)
	}

	outcome := o.engine.Run(draft, o.policy.Guards)
	if outcome.Blocked {
		o.tel.blocks.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", outcome.BlockedBy)))
	}

	done := o.policy.IsEnd(next)
	var approvalRole string
	if it, ok := o.policy.Intent(next); ok {
		approvalRole = it.HumanApproval
	}
	turnNo := o.memory.Turns() + 1

	ev := audit.Event{
		Timestamp:     o.cfg.Now().UTC().Format(audit.TimestampFormat),
		SessionID:     o.SessionID(),
		Turn:          turnNo,
		PolicyID:      o.policy.ID,
		PolicyHash:    o.hash,
		Intent:        next,
		Allowed:       allowed,
		Clamped:       clamped,
		UserText:      userText,
		AssistantText: outcome.Text,
		Guards:        outcome.Results,
		Done:          done,
		Approval:      approvalRole,
	}
	if clamped {
		ev.Proposed = proposed
	}
	if err := o.sink.Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuditFailed, err)
	}

	o.memory.Commit(userText, outcome.Text, next)

	if approvalRole != "" {
		o.requestApproval(ctx, next, approvalRole, turnNo)
	}

	attrs := []any{"turn", turnNo, "from", current, "intent", next, "done", done,
		"guards", len(outcome.Results), "blocked", outcome.Blocked}
	if o.cfg.Debug {
		attrs = append(attrs, "draft", draft, "final", outcome.Text, "guard_results", outcome.Results)
	}
	o.log.InfoContext(ctx, "turn complete", attrs...)

	return &Result{
		Turn:        turnNo,
		Intent:      next,
		Text:        outcome.Text,
		GuardEvents: slices.Clone(outcome.Results),
		AllowedNext: o.graph.AllowedNext(next),
		Done:        done,
		Clamped:     clamped,
		Proposed:    ev.Proposed,
		Approval:    approvalRole,
	}, nil
}

func (o *Orchestrator) requestApproval(ctx context.Context, intent, role string, turnNo int) {
	if o.cfg.Approvals == nil {
		return
	}
	t := approval.Ticket{
		Key:       approval.TicketKey(o.SessionID(), intent),
		Role:      role,
		SessionID: o.SessionID(),
		Intent:    intent,
		PolicyID:  o.policy.ID,
		Reason:    fmt.Sprintf("turn %d entered %s", turnNo, intent),
	}
	if err := o.cfg.Approvals.Request(t); err != nil {
		o.log.WarnContext(ctx, "approval request not recorded", "intent", intent, "role", role, "error", err)
	}
}
