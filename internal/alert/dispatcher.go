package alert

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ppiankov/turnguard/internal/audit"
	"github.com/ppiankov/turnguard/internal/guard"
)

// dispatchDeadline bounds one delivery including its retries, so Close
// cannot hang on a slow receiver.
const dispatchDeadline = 30 * time.Second

// Dispatcher fans out alert events to matching webhook configurations.
// It is an audit.Sink: every appended turn is turned into zero or more
// alert events. Delivery is asynchronous and never fails the turn.
type Dispatcher struct {
	configs []AlertConfig
	log     *slog.Logger
	wg      sync.WaitGroup
}

var _ audit.Sink = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []AlertConfig, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{configs: configs, log: logger}
}

// Dispatch sends the event to all webhooks whose Events list matches.
// Does not block the caller.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	for _, cfg := range d.configs {
		if !slices.Contains(cfg.Events, event.Type) {
			continue
		}
		d.wg.Add(1)
		go func(cfg AlertConfig) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), dispatchDeadline)
			defer cancel()
			if err := Send(ctx, cfg, event); err != nil {
				d.log.Warn("alert delivery failed", "url", cfg.URL, "alert", event.ID(), "error", err)
			}
		}(cfg)
	}
}

// Append derives alert events from one audited turn and dispatches them.
func (d *Dispatcher) Append(ctx context.Context, ev audit.Event) error {
	for _, a := range FromTurn(ev) {
		d.Dispatch(a)
	}
	return nil
}

// Close waits for in-flight deliveries.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	return nil
}

// FromTurn lists the alertable outcomes of a turn: one event per non-allow
// guard result, then clamp, approval and done.
func FromTurn(ev audit.Event) []AlertEvent {
	base := AlertEvent{
		Timestamp:  ev.Timestamp,
		SessionID:  ev.SessionID,
		Turn:       ev.Turn,
		PolicyID:   ev.PolicyID,
		PolicyHash: ev.PolicyHash,
		Intent:     ev.Intent,
	}
	var out []AlertEvent
	for _, g := range ev.Guards {
		if g.Action == guard.Allow {
			continue
		}
		a := base
		a.Type = string(g.Action)
		a.RuleID = g.RuleID
		a.Reason = g.Message
		out = append(out, a)
	}
	if ev.Clamped {
		a := base
		a.Type = TypeClamp
		a.Reason = fmt.Sprintf("oracle proposed %q outside the allowed set", ev.Proposed)
		out = append(out, a)
	}
	if ev.Approval != "" {
		a := base
		a.Type = TypeApproval
		a.Reason = fmt.Sprintf("intent %q requires %s approval", ev.Intent, ev.Approval)
		out = append(out, a)
	}
	if ev.Done {
		a := base
		a.Type = TypeDone
		a.Reason = "conversation reached a terminal intent"
		out = append(out, a)
	}
	return out
}
