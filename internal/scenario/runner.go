// Package scenario replays scripted conversations through the turn
// orchestrator and checks each turn against expectations.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/turnguard/internal/audit"
	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/oracle"
	"github.com/ppiankov/turnguard/internal/policy"
	"github.com/ppiankov/turnguard/internal/turn"
)

// Run replays the scenario steps in one fresh session. Steps share memory,
// so each step sees the intent the previous one committed.
func Run(ctx context.Context, s *Scenario, p *policy.Policy, eng *guard.Engine) *RunResult {
	result := &RunResult{
		Name:     s.Name,
		PolicyID: p.ID,
		Total:    len(s.Steps),
	}

	script := oracle.NewScripted()
	hash, _ := policy.Hash(p)
	orch := turn.New(p, hash, script, audit.NewMemorySink(), eng, "scenario", turn.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	for i, st := range s.Steps {
		queue(script, st)

		sr := StepResult{Index: i + 1, User: st.User}
		res, err := orch.RunTurn(ctx, st.User)
		if err != nil {
			sr.Failures = checkError(st.Expect, err)
		} else {
			sr.Intent = res.Intent
			sr.Text = res.Text
			sr.Failures = check(st.Expect, res)
		}

		if len(sr.Failures) == 0 {
			sr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Steps = append(result.Steps, sr)
	}

	return result
}

func queue(script *oracle.Scripted, st Step) {
	if st.OracleError != "" {
		script.ChooseErr(errors.New(st.OracleError))
		return
	}
	if st.Choose != "" {
		script.Choose(st.Choose)
	}
	if st.Draft != "" {
		script.Draft(st.Draft)
	}
}

func checkError(e Expect, err error) []string {
	var want error
	switch e.Error {
	case "oracle_unavailable":
		want = turn.ErrOracleUnavailable
	case "audit_failed":
		want = turn.ErrAuditFailed
	case "":
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	default:
		return []string{fmt.Sprintf("unknown expected error %q", e.Error)}
	}
	if !errors.Is(err, want) {
		return []string{fmt.Sprintf("error: expected %s, got %v", e.Error, err)}
	}
	return nil
}

func check(e Expect, res *turn.Result) []string {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	if e.Error != "" {
		fail("error: expected %s, turn succeeded", e.Error)
	}
	if e.Intent != "" && res.Intent != e.Intent {
		fail("intent: expected %s, got %s", e.Intent, res.Intent)
	}
	if e.Text != nil && res.Text != *e.Text {
		fail("text: expected %q, got %q", *e.Text, res.Text)
	}
	for _, sub := range e.TextContains {
		if !strings.Contains(res.Text, sub) {
			fail("text: missing %q in %q", sub, res.Text)
		}
	}
	if e.Done != nil && res.Done != *e.Done {
		fail("done: expected %v, got %v", *e.Done, res.Done)
	}
	if e.Blocked != nil && res.Blocked() != *e.Blocked {
		fail("blocked: expected %v, got %v", *e.Blocked, res.Blocked())
	}
	if e.Clamped != nil && res.Clamped != *e.Clamped {
		fail("clamped: expected %v, got %v", *e.Clamped, res.Clamped)
	}
	if e.Guards != nil {
		got := make([]string, 0, len(res.GuardEvents))
		for _, g := range res.GuardEvents {
			got = append(got, string(g.Action)+":"+g.RuleID)
		}
		if !slices.Equal(got, e.Guards) {
			fail("guards: expected %v, got %v", e.Guards, got)
		}
	}
	return failures
}

// Load parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and the policy it names, then runs it.
// A policy path in the scenario is resolved relative to the scenario file
// and overrides policyPath.
func LoadAndRun(ctx context.Context, path, policyPath string, eng *guard.Engine) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	if s.Policy != "" {
		policyPath = s.Policy
		if !filepath.IsAbs(policyPath) {
			policyPath = filepath.Join(filepath.Dir(path), policyPath)
		}
	}
	p, err := policy.Load(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	result := Run(ctx, s, p, eng)
	result.File = path

	return result, nil
}
