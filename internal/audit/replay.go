package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/turnguard/internal/guard"
)

// ReplayFilter holds filtering criteria for session replay.
type ReplayFilter struct {
	SessionID string    // empty = every session
	From      time.Time // zero value = no lower bound
	To        time.Time // zero value = no upper bound
}

// ReplaySummary holds per-turn counts for a replayed session.
type ReplaySummary struct {
	Turns          int    `json:"turns"`
	BlockedCount   int    `json:"blocked_count"`
	RedactedCount  int    `json:"redacted_count"`
	WarnedCount    int    `json:"warned_count"`
	ClampedCount   int    `json:"clamped_count"`
	DoneCount      int    `json:"done_count"`
	ApprovalCount  int    `json:"approval_count"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
	FinalIntent    string `json:"final_intent"`
}

// ReplayResult holds filtered events and summary for a session replay.
type ReplayResult struct {
	SessionID string        `json:"session_id"`
	Events    []Event       `json:"events"`
	Summary   ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns events matching the filter,
// in file order.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{
		SessionID: filter.SessionID,
	}

	scanner := newScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}

		if filter.SessionID != "" && ev.SessionID != filter.SessionID {
			continue
		}

		if !filter.From.IsZero() || !filter.To.IsZero() {
			ts, err := time.Parse(TimestampFormat, ev.Timestamp)
			if err != nil {
				continue
			}
			if !filter.From.IsZero() && ts.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && ts.After(filter.To) {
				continue
			}
		}

		result.Events = append(result.Events, ev)
		updateSummary(&result.Summary, ev)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return result, nil
}

// Tail returns the last n events of the log across all sessions.
func Tail(path string, n int) ([]Event, error) {
	res, err := Replay(path, ReplayFilter{})
	if err != nil {
		return nil, err
	}
	if n > 0 && len(res.Events) > n {
		return res.Events[len(res.Events)-n:], nil
	}
	return res.Events, nil
}

func updateSummary(s *ReplaySummary, ev Event) {
	s.Turns++

	if ev.has(guard.Block) {
		s.BlockedCount++
	}
	if ev.has(guard.Redact) {
		s.RedactedCount++
	}
	if ev.has(guard.Warn) {
		s.WarnedCount++
	}
	if ev.Clamped {
		s.ClampedCount++
	}
	if ev.Done {
		s.DoneCount++
	}
	if ev.Approval != "" {
		s.ApprovalCount++
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = ev.Timestamp
	}
	s.LastTimestamp = ev.Timestamp
	s.FinalIntent = ev.Intent
}
