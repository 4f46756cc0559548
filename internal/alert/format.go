package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	rule := event.RuleID
	if rule == "" {
		rule = "-"
	}
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("turnguard: %s", event.Type),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s (turn %d)", event.SessionID, event.Turn)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Intent:* %s", event.Intent)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Rule:* %s", rule)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("turnguard %s: %s", event.Type, event.Reason),
			"severity": severityFor(event.Type),
			"source":   "turnguard",
			"custom_details": map[string]any{
				"session_id":  event.SessionID,
				"turn":        event.Turn,
				"intent":      event.Intent,
				"rule_id":     event.RuleID,
				"policy_id":   event.PolicyID,
				"policy_hash": event.PolicyHash,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(eventType string) string {
	switch eventType {
	case TypeBlock:
		return "error"
	case TypeApproval, TypeClamp:
		return "warning"
	default:
		return "info"
	}
}
