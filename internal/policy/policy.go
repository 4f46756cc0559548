package policy

import (
	"slices"

	"github.com/Masterminds/semver/v3"
)

// Guard modes. An empty mode is treated as ModeBlock.
const (
	ModeBlock  = "block"
	ModeRedact = "redact"
	ModeWarn   = "warn"
)

// Built-in guard kinds. Any other kind string is accepted by the loader and
// resolved by the guard engine's unknown-kind policy.
const (
	KindPII       = "pii"
	KindBlocklist = "blocklist"
	KindChannel   = "channel"
	KindCEL       = "cel"
)

// DefaultStartIntent and DefaultEndIntent are used when a document omits
// default_intent or end_intents.
const (
	DefaultStartIntent = "start"
	DefaultEndIntent   = "goodbye"
)

// Intent is a named conversational state with a legal successor set.
type Intent struct {
	ID            string   `json:"id"`
	Description   string   `json:"description,omitempty"`
	RequiredSlots []string `json:"required_slots,omitempty"`
	AllowedNext   []string `json:"allowed_next"`
	HumanApproval string   `json:"human_approval,omitempty"`
}

// GuardRule is a named check applied to every drafted reply.
// Rules run in the order they appear in Policy.Guards.
type GuardRule struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Mode   string         `json:"mode"`
	Params map[string]any `json:"params,omitempty"`
}

// EffectiveMode returns the rule mode, defaulting to block.
func (r GuardRule) EffectiveMode() string {
	if r.Mode == "" {
		return ModeBlock
	}
	return r.Mode
}

// Name returns the rule ID, or the kind when the ID is empty.
func (r GuardRule) Name() string {
	if r.ID == "" {
		return r.Kind
	}
	return r.ID
}

// StringParam returns a string parameter, or def when absent or not a string.
func (r GuardRule) StringParam(key, def string) string {
	if v, ok := r.Params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// StringsParam returns a list parameter as strings. Non-string items are skipped.
func (r GuardRule) StringsParam(key string) []string {
	switch v := r.Params[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

// Guideline is an advisory record shown to operators. It never alters control flow.
type Guideline struct {
	ID     string `json:"id"`
	When   string `json:"when"`
	Do     string `json:"do"`
	Weight int    `json:"weight"`
}

// Policy is the root aggregate loaded from a policy document.
// A Policy must not be modified after it is loaded; sessions share it read-only.
type Policy struct {
	ID            string            `json:"id"`
	Version       string            `json:"version"`
	Intents       map[string]Intent `json:"intents"`
	IntentOrder   []string          `json:"intent_order"`
	Guards        []GuardRule       `json:"guards"`
	Guidelines    []Guideline       `json:"guidelines"`
	DefaultIntent string            `json:"default_intent"`
	EndIntents    []string          `json:"end_intents"`
}

// Intent looks up an intent by id.
func (p *Policy) Intent(id string) (Intent, bool) {
	it, ok := p.Intents[id]
	return it, ok
}

// AllowedNext returns a copy of the successor list of id.
// Unknown ids yield an empty list, never an error.
func (p *Policy) AllowedNext(id string) []string {
	it, ok := p.Intents[id]
	if !ok {
		return []string{}
	}
	return slices.Clone(it.AllowedNext)
}

// IsEnd reports whether id is a terminal intent.
func (p *Policy) IsEnd(id string) bool {
	return slices.Contains(p.EndIntents, id)
}

// GuardRules returns a copy of the ordered guard list.
func (p *Policy) GuardRules() []GuardRule {
	return slices.Clone(p.Guards)
}

// SemVer parses Version as a semantic version. ok is false for free-form versions.
func (p *Policy) SemVer() (*semver.Version, bool) {
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return nil, false
	}
	return v, true
}

// OrderedIntents returns intents in document order. Intents missing from
// IntentOrder (hand-built policies) follow in sorted id order.
func (p *Policy) OrderedIntents() []Intent {
	out := make([]Intent, 0, len(p.Intents))
	seen := make(map[string]bool, len(p.Intents))
	for _, id := range p.IntentOrder {
		if it, ok := p.Intents[id]; ok && !seen[id] {
			out = append(out, it)
			seen[id] = true
		}
	}
	var rest []string
	for id := range p.Intents {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	for _, id := range rest {
		out = append(out, p.Intents[id])
	}
	return out
}
