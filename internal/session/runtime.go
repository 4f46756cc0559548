package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/turnguard/internal/alert"
	"github.com/ppiankov/turnguard/internal/approval"
	"github.com/ppiankov/turnguard/internal/audit"
	"github.com/ppiankov/turnguard/internal/config"
	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/oracle"
	"github.com/ppiankov/turnguard/internal/policy"
	"github.com/ppiankov/turnguard/internal/turn"
)

// ErrDowngrade is returned when a reload would lower the policy version.
var ErrDowngrade = errors.New("session: policy version downgrade refused")

// Runtime wires a Manager from settings: policy, oracle, guard engine,
// audit sink and approval store.
type Runtime struct {
	*Manager
	Config     config.Config
	PolicyPath string
	Approvals  *approval.Store
	Sink       audit.Sink
}

// Build loads everything cfg names. Close releases the audit sink.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p, hash, err := policy.LoadWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	unknown, err := guard.ParseUnknownKind(cfg.Guards.UnknownKind)
	if err != nil {
		return nil, err
	}

	o, err := oracle.New(cfg.Oracle)
	if err != nil {
		return nil, err
	}

	system, err := cfg.SystemPrompt()
	if err != nil {
		return nil, err
	}

	store, err := approval.NewStore(cfg.ResolvedApprovalDir())
	if err != nil {
		return nil, err
	}

	sink, err := audit.OpenSink(ctx, cfg.Audit)
	if err != nil {
		return nil, err
	}
	if m, ok := sink.(*audit.MultiSink); ok {
		m.OnMirrorError = mirrorLogger(logger)
	}
	if d := alert.NewDispatcher(cfg.Alerts, logger); d != nil {
		// Mirror of the primary record, so webhooks only fire for recorded turns.
		m := audit.Multi(sink, d)
		m.OnMirrorError = mirrorLogger(logger)
		sink = m
	}

	mgr := NewManager(p, hash, Options{
		Oracle: o,
		Sink:   sink,
		Engine: guard.NewEngine(guard.Options{UnknownKind: unknown}),
		Turn: turn.Config{
			SystemPrompt: system,
			Fallback:     cfg.Fallback,
			Debug:        cfg.Debug,
			Logger:       logger,
			Approvals:    store,
		},
	})
	logger.Info("policy loaded", "policy", p.ID, "version", p.Version, "hash", hash,
		"oracle", cfg.Oracle.Provider, "audit", cfg.Audit)

	return &Runtime{
		Manager:    mgr,
		Config:     cfg,
		PolicyPath: cfg.PolicyPath,
		Approvals:  store,
		Sink:       sink,
	}, nil
}

func mirrorLogger(logger *slog.Logger) func(audit.Sink, error) {
	return func(s audit.Sink, err error) {
		logger.Error("audit mirror append failed", "sink", fmt.Sprintf("%T", s), "error", err)
	}
}

// ReloadPolicy re-reads the policy file and swaps it in for new sessions.
// A version lower than the active one is refused; free-form versions are
// not compared.
func (r *Runtime) ReloadPolicy() error {
	next, hash, err := policy.LoadWithHash(r.PolicyPath)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	cur, curHash := r.Policy()
	if hash == curHash {
		return nil
	}
	if err := CheckUpgrade(cur, next); err != nil {
		return err
	}
	r.Reload(next, hash)
	return nil
}

// CheckUpgrade returns ErrDowngrade when both versions are semantic and next
// is lower than cur.
func CheckUpgrade(cur, next *policy.Policy) error {
	cv, ok1 := cur.SemVer()
	nv, ok2 := next.SemVer()
	if ok1 && ok2 && nv.LessThan(cv) {
		return fmt.Errorf("%w: %s -> %s", ErrDowngrade, cur.Version, next.Version)
	}
	return nil
}

// Close releases the audit sink.
func (r *Runtime) Close() error {
	if r.Sink == nil {
		return nil
	}
	return r.Sink.Close()
}
