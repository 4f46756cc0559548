package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/turnguard/internal/guard"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	label := result.SessionID
	if label == "" {
		label = "all sessions"
	}
	if len(result.Events) == 0 {
		return fmt.Sprintf("Session: %s | No events found.\n", label)
	}

	var b strings.Builder

	first := formatDateRange(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	b.WriteString(fmt.Sprintf("Session: %s | %s–%s UTC\n", label, first, last))
	b.WriteString(separator + "\n")

	for _, e := range result.Events {
		b.WriteString(FormatEvent(e))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatEvent renders one event as a timeline row.
func FormatEvent(e Event) string {
	ts := formatTimeOnly(e.Timestamp)
	intent := truncate(e.Intent, 18)
	if e.Clamped {
		intent = truncate(e.Intent, 14) + " (c)"
	}
	text := truncate(strings.ReplaceAll(e.AssistantText, "\n", " "), 40)

	var tags []string
	for _, g := range e.Guards {
		if g.Action != guard.Allow {
			tags = append(tags, fmt.Sprintf("%s:%s", g.Action, g.RuleID))
		}
	}
	if e.Approval != "" {
		tags = append(tags, "approval:"+e.Approval)
	}
	if e.Done {
		tags = append(tags, "done")
	}
	tag := ""
	if len(tags) > 0 {
		tag = "  [" + strings.Join(tags, " ") + "]"
	}

	return fmt.Sprintf("%-10s #%-3d %-18s %-40s%s\n", ts, e.Turn, intent, text, tag)
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{fmt.Sprintf("%d turns", s.Turns)}
	if s.BlockedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d blocked", s.BlockedCount))
	}
	if s.RedactedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d redacted", s.RedactedCount))
	}
	if s.WarnedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d warned", s.WarnedCount))
	}
	if s.ClampedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d clamped", s.ClampedCount))
	}
	if s.ApprovalCount > 0 {
		parts = append(parts, fmt.Sprintf("%d approval", s.ApprovalCount))
	}

	state := "open"
	if s.DoneCount > 0 {
		state = "ended"
	}
	return fmt.Sprintf("Summary: %s | Final intent: %s (%s)\n",
		strings.Join(parts, ", "), s.FinalIntent, state)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
