// Package alert posts notable turn outcomes to webhooks.
package alert

import "strconv"

// Event types a webhook can subscribe to.
const (
	TypeBlock    = "block"
	TypeRedact   = "redact"
	TypeWarn     = "warn"
	TypeClamp    = "clamp"
	TypeApproval = "approval"
	TypeDone     = "done"
)

// AlertConfig is one webhook destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["block", "approval", "clamp"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp  string `json:"timestamp"`
	SessionID  string `json:"session_id"`
	Turn       int    `json:"turn"`
	PolicyID   string `json:"policy_id"`
	PolicyHash string `json:"policy_hash"`
	Intent     string `json:"intent"`
	Type       string `json:"type"`
	RuleID     string `json:"rule_id,omitempty"`
	Reason     string `json:"reason"`
}

// ID identifies the alert within its turn: session, turn number, type and,
// for guard alerts, the rule. A retried delivery carries the same ID.
func (e AlertEvent) ID() string {
	id := e.SessionID + "/" + strconv.Itoa(e.Turn) + "/" + e.Type
	if e.RuleID != "" {
		id += "/" + e.RuleID
	}
	return id
}
