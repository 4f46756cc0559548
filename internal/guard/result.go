// Package guard evaluates drafted replies against the ordered guard rules of a policy.
package guard

// Disposition is the action a guard takes on a reply.
type Disposition string

const (
	Allow  Disposition = "allow"
	Block  Disposition = "block"
	Redact Disposition = "redact"
	Warn   Disposition = "warn"
)

// SafeRefusal replaces any reply a guard blocks.
const SafeRefusal = "I'm not able to share that here. I've routed this to a secure channel."

// Result is the outcome of one guard rule.
// Passed is false exactly when Action is Block.
// Transformed is set only when Action is Redact.
type Result struct {
	RuleID      string      `json:"rule_id"`
	Kind        string      `json:"kind"`
	Passed      bool        `json:"ok"`
	Action      Disposition `json:"action"`
	Message     string      `json:"message,omitempty"`
	Transformed string      `json:"transformed,omitempty"`
}

// Outcome is the result of running a full guard pipeline over one reply.
type Outcome struct {
	Text      string   `json:"text"`
	Results   []Result `json:"results"`
	Blocked   bool     `json:"blocked"`
	BlockedBy string   `json:"blocked_by,omitempty"`
}

// Count returns how many results carry the given disposition.
func (o Outcome) Count(d Disposition) int {
	n := 0
	for _, r := range o.Results {
		if r.Action == d {
			n++
		}
	}
	return n
}
