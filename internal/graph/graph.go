// Package graph answers "which intents may follow this one" for a loaded policy.
package graph

import (
	"slices"

	"github.com/ppiankov/turnguard/internal/policy"
)

// Graph is an immutable adjacency view of a policy's intents.
// Safe for concurrent reads.
type Graph struct {
	order []string
	edges map[string][]string
	ends  map[string]bool
}

// New builds the graph for p. Edge lists keep the order written in the policy.
func New(p *policy.Policy) *Graph {
	g := &Graph{
		edges: make(map[string][]string, len(p.Intents)),
		ends:  make(map[string]bool, len(p.EndIntents)),
	}
	for _, it := range p.OrderedIntents() {
		g.order = append(g.order, it.ID)
		g.edges[it.ID] = slices.Clone(it.AllowedNext)
	}
	for _, id := range p.EndIntents {
		g.ends[id] = true
	}
	return g
}

// AllowedNext returns the successors of id. Unknown ids yield an empty list.
func (g *Graph) AllowedNext(id string) []string {
	next, ok := g.edges[id]
	if !ok {
		return []string{}
	}
	return slices.Clone(next)
}

// IsAllowed reports whether candidate is a legal successor of current.
func (g *Graph) IsAllowed(current, candidate string) bool {
	return slices.Contains(g.edges[current], candidate)
}

// Intents returns defined intent ids in policy order.
func (g *Graph) Intents() []string {
	return slices.Clone(g.order)
}

// Has reports whether id is a defined intent.
func (g *Graph) Has(id string) bool {
	_, ok := g.edges[id]
	return ok
}

// Reachable returns every defined intent reachable from "from", including
// from itself, in breadth-first order. Undefined targets are skipped.
func (g *Graph) Reachable(from string) []string {
	if !g.Has(from) {
		return nil
	}
	seen := map[string]bool{from: true}
	out := []string{from}
	for i := 0; i < len(out); i++ {
		for _, next := range g.edges[out[i]] {
			if seen[next] || !g.Has(next) {
				continue
			}
			seen[next] = true
			out = append(out, next)
		}
	}
	return out
}

// Unreachable returns defined intents not reachable from "from", in policy order.
func (g *Graph) Unreachable(from string) []string {
	reach := make(map[string]bool)
	for _, id := range g.Reachable(from) {
		reach[id] = true
	}
	var out []string
	for _, id := range g.order {
		if !reach[id] {
			out = append(out, id)
		}
	}
	return out
}

// Dead returns non-terminal intents that have no successors.
// A conversation entering one of them stays there.
func (g *Graph) Dead() []string {
	var out []string
	for _, id := range g.order {
		if len(g.edges[id]) == 0 && !g.ends[id] {
			out = append(out, id)
		}
	}
	return out
}
