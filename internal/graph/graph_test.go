package graph

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ppiankov/turnguard/internal/policy"
)

func testPolicy() *policy.Policy {
	return &policy.Policy{
		ID: "t",
		Intents: map[string]policy.Intent{
			"start":        {ID: "start", AllowedNext: []string{"eligibility", "out_of_scope"}},
			"eligibility":  {ID: "eligibility", AllowedNext: []string{"goodbye", "ghost"}},
			"out_of_scope": {ID: "out_of_scope", AllowedNext: []string{}},
			"goodbye":      {ID: "goodbye", AllowedNext: []string{}},
			"island":       {ID: "island", AllowedNext: []string{"goodbye"}},
		},
		IntentOrder:   []string{"start", "eligibility", "out_of_scope", "goodbye", "island"},
		DefaultIntent: "start",
		EndIntents:    []string{"goodbye"},
	}
}

func TestAllowedNextOrder(t *testing.T) {
	g := New(testPolicy())
	got := g.AllowedNext("start")
	want := []string{"eligibility", "out_of_scope"}
	if !slices.Equal(got, want) {
		t.Fatalf("AllowedNext(start) = %v, want %v", got, want)
	}
}

func TestAllowedNextUnknownAndEmpty(t *testing.T) {
	g := New(testPolicy())
	for _, id := range []string{"", "nope", "goodbye"} {
		got := g.AllowedNext(id)
		if got == nil || len(got) != 0 {
			t.Errorf("AllowedNext(%q) = %#v, want empty list", id, got)
		}
	}
}

func TestAllowedNextKeepsDanglingTargets(t *testing.T) {
	g := New(testPolicy())
	if !g.IsAllowed("eligibility", "ghost") {
		t.Error("undefined target listed in allowed_next must still be a legal successor")
	}
	if g.IsAllowed("start", "goodbye") {
		t.Error("goodbye is not a successor of start")
	}
}

func TestAllowedNextIsolation(t *testing.T) {
	g := New(testPolicy())
	a := g.AllowedNext("start")
	a[0] = "tampered"
	if g.AllowedNext("start")[0] != "eligibility" {
		t.Fatal("caller mutation leaked into the graph")
	}
}

func TestReachableAndUnreachable(t *testing.T) {
	g := New(testPolicy())
	got := g.Reachable("start")
	want := []string{"start", "eligibility", "out_of_scope", "goodbye"}
	if !slices.Equal(got, want) {
		t.Errorf("Reachable = %v, want %v", got, want)
	}
	if un := g.Unreachable("start"); !slices.Equal(un, []string{"island"}) {
		t.Errorf("Unreachable = %v", un)
	}
	if g.Reachable("nope") != nil {
		t.Error("Reachable from unknown intent should be nil")
	}
}

func TestDead(t *testing.T) {
	g := New(testPolicy())
	if dead := g.Dead(); !slices.Equal(dead, []string{"out_of_scope"}) {
		t.Errorf("Dead = %v", dead)
	}
}

func TestIntentsOrder(t *testing.T) {
	g := New(testPolicy())
	if !slices.Equal(g.Intents(), testPolicy().IntentOrder) {
		t.Errorf("Intents = %v", g.Intents())
	}
}

func TestAllowedNextProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	p := testPolicy()
	g1 := New(p)
	g2 := New(p)

	properties.Property("AllowedNext is idempotent across calls and builds", prop.ForAll(
		func(id string) bool {
			return slices.Equal(g1.AllowedNext(id), g1.AllowedNext(id)) &&
				slices.Equal(g1.AllowedNext(id), g2.AllowedNext(id))
		},
		gen.OneGenOf(gen.OneConstOf("start", "eligibility", "goodbye", "island"), gen.AlphaString()),
	))

	properties.Property("undefined intents have no successors", prop.ForAll(
		func(id string) bool {
			if _, ok := p.Intents[id]; ok {
				return true
			}
			next := g1.AllowedNext(id)
			return next != nil && len(next) == 0
		},
		gen.AnyString(),
	))

	properties.Property("IsAllowed agrees with AllowedNext", prop.ForAll(
		func(cur, cand string) bool {
			return g1.IsAllowed(cur, cand) == slices.Contains(g1.AllowedNext(cur), cand)
		},
		gen.OneConstOf("start", "eligibility", "goodbye", "nope"),
		gen.OneConstOf("eligibility", "out_of_scope", "goodbye", "ghost", "x"),
	))

	properties.TestingRun(t)
}
