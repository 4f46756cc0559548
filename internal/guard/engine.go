package guard

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ppiankov/turnguard/internal/policy"
)

// UnknownKindPolicy decides what happens to a rule whose kind the engine
// does not recognize, or whose custom evaluation fails.
type UnknownKindPolicy int

const (
	// FailOpen lets the reply through unchanged.
	FailOpen UnknownKindPolicy = iota
	// FailClosed blocks the reply.
	FailClosed
)

// ParseUnknownKind maps a config value ("allow", "block") to a policy.
func ParseUnknownKind(s string) (UnknownKindPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow", "open":
		return FailOpen, nil
	case "block", "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("guard: unknown_kind must be allow or block, got %q", s)
	}
}

// DefaultChannel is the channel a channel guard requires when params.required is unset.
const DefaultChannel = "secure_upload"

// Options configures an Engine.
type Options struct {
	UnknownKind UnknownKindPolicy
	// OnEvaluate, when set, is called once for every rule the engine evaluates.
	OnEvaluate func(rule policy.GuardRule)
}

// Engine evaluates guard rules. It holds no per-turn state and is safe for
// concurrent use by many sessions.
type Engine struct {
	opts Options
	cel  *celCache
}

// NewEngine creates a guard engine.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts, cel: newCELCache()}
}

// Evaluate applies one rule to text. The result depends only on its inputs.
func (e *Engine) Evaluate(text string, rule policy.GuardRule) Result {
	if e.opts.OnEvaluate != nil {
		e.opts.OnEvaluate(rule)
	}
	res := Result{RuleID: rule.Name(), Kind: rule.Kind}

	switch rule.Kind {
	case policy.KindPII:
		return evalPII(text, rule, res)
	case policy.KindBlocklist:
		return evalBlocklist(text, rule, res)
	case policy.KindChannel:
		return evalChannel(text, rule, res)
	case policy.KindCEL:
		return e.evalCEL(text, rule, res)
	default:
		return e.unknown(res, fmt.Sprintf("unrecognized guard kind '%s'", rule.Kind))
	}
}

// Run folds rules over text in order. A redaction is seen by every later
// rule. The first block replaces the text with SafeRefusal and stops; later
// rules are neither evaluated nor recorded.
func (e *Engine) Run(text string, rules []policy.GuardRule) Outcome {
	out := Outcome{Text: text, Results: make([]Result, 0, len(rules))}
	for _, rule := range rules {
		res := e.Evaluate(out.Text, rule)
		out.Results = append(out.Results, res)
		switch res.Action {
		case Block:
			out.Text = SafeRefusal
			out.Blocked = true
			out.BlockedBy = res.RuleID
			return out
		case Redact:
			out.Text = res.Transformed
		}
	}
	return out
}

func evalPII(text string, rule policy.GuardRule, res Result) Result {
	if !HasPII(text) {
		return allow(res)
	}
	if rule.EffectiveMode() == policy.ModeRedact {
		res.Passed = true
		res.Action = Redact
		res.Message = "PII redacted"
		res.Transformed = RedactPII(text)
		return res
	}
	res.Action = Block
	res.Message = "PII detected"
	return res
}

func evalBlocklist(text string, rule policy.GuardRule, res Result) Result {
	term, ok := firstTerm(text, rule.StringsParam("terms"))
	if !ok {
		return allow(res)
	}
	if rule.EffectiveMode() == policy.ModeWarn {
		res.Passed = true
		res.Action = Warn
		res.Message = fmt.Sprintf("Contains '%s'", term)
		return res
	}
	res.Action = Block
	res.Message = fmt.Sprintf("Blocked term '%s'", term)
	return res
}

// firstTerm returns the first term, in list order, contained in text under
// Unicode case folding. The term is returned lowercased for messages.
func firstTerm(text string, terms []string) (string, bool) {
	if len(terms) == 0 {
		return "", false
	}
	// Casers are stateful and must not be shared between goroutines.
	fold := cases.Fold()
	folded := fold.String(text)
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(folded, fold.String(t)) {
			return strings.ToLower(t), true
		}
	}
	return "", false
}

func evalChannel(text string, rule policy.GuardRule, res Result) Result {
	required := rule.StringParam("required", DefaultChannel)
	if strings.Contains(text, "[channel:"+required+"]") {
		return allow(res)
	}
	res.Action = Block
	res.Message = fmt.Sprintf("Requires channel '%s'", required)
	return res
}

func (e *Engine) evalCEL(text string, rule policy.GuardRule, res Result) Result {
	expr := rule.StringParam("expr", "")
	if expr == "" {
		return e.unknown(res, "cel guard has no expr")
	}
	fired, err := e.cel.eval(expr, text, rule.Params)
	if err != nil {
		return e.unknown(res, err.Error())
	}
	if !fired {
		return allow(res)
	}
	msg := rule.StringParam("message", fmt.Sprintf("Matched '%s'", rule.Name()))
	if rule.EffectiveMode() == policy.ModeWarn {
		res.Passed = true
		res.Action = Warn
		res.Message = msg
		return res
	}
	res.Action = Block
	res.Message = msg
	return res
}

func (e *Engine) unknown(res Result, msg string) Result {
	if e.opts.UnknownKind == FailClosed {
		res.Action = Block
		res.Message = msg
		return res
	}
	return allow(res)
}

func allow(res Result) Result {
	res.Passed = true
	res.Action = Allow
	return res
}
