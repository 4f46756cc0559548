package policy

import "fmt"

// Gap is a reference to an intent id that the policy does not define.
// Gaps are never fatal: lookups against the missing id yield no successors.
type Gap struct {
	From   string `json:"from"`
	Field  string `json:"field"`
	Target string `json:"target"`
}

func (g Gap) String() string {
	if g.From == "" {
		return fmt.Sprintf("%s references undefined intent %q", g.Field, g.Target)
	}
	return fmt.Sprintf("intent %q %s references undefined intent %q", g.From, g.Field, g.Target)
}

// ReferenceGaps lists every undefined intent referenced by allowed_next,
// default_intent or end_intents, in document order.
func (p *Policy) ReferenceGaps() []Gap {
	var gaps []Gap
	if _, ok := p.Intents[p.DefaultIntent]; !ok {
		gaps = append(gaps, Gap{Field: "default_intent", Target: p.DefaultIntent})
	}
	for _, id := range p.EndIntents {
		if _, ok := p.Intents[id]; !ok {
			gaps = append(gaps, Gap{Field: "end_intents", Target: id})
		}
	}
	for _, it := range p.OrderedIntents() {
		for _, next := range it.AllowedNext {
			if _, ok := p.Intents[next]; !ok {
				gaps = append(gaps, Gap{From: it.ID, Field: "allowed_next", Target: next})
			}
		}
	}
	return gaps
}
