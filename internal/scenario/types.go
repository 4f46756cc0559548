package scenario

// Expect holds the assertions for one step. Unset fields are not checked.
type Expect struct {
	Intent       string   `yaml:"intent,omitempty"`
	Text         *string  `yaml:"text,omitempty"`
	TextContains []string `yaml:"text_contains,omitempty"`
	Done         *bool    `yaml:"done,omitempty"`
	Blocked      *bool    `yaml:"blocked,omitempty"`
	Clamped      *bool    `yaml:"clamped,omitempty"`
	// Guards lists "<action>:<rule_id>" for every recorded guard result, in order.
	Guards []string `yaml:"guards,omitempty"`
	// Error is "oracle_unavailable" or "audit_failed" when the turn must fail.
	Error string `yaml:"error,omitempty"`
}

// Step is one user message plus the scripted model answers for that turn.
// An empty Choose or Draft falls back to the mock oracle.
type Step struct {
	User   string `yaml:"user"`
	Choose string `yaml:"choose,omitempty"`
	Draft  string `yaml:"draft,omitempty"`
	// OracleError makes the oracle fail on this turn.
	OracleError string `yaml:"oracle_error,omitempty"`
	Expect      Expect `yaml:"expect"`
}

// Scenario is a named conversation replayed against a policy.
type Scenario struct {
	Name   string `yaml:"name"`
	Policy string `yaml:"policy,omitempty"`
	Steps  []Step `yaml:"steps"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index    int      `json:"index"`
	Passed   bool     `json:"passed"`
	User     string   `json:"user"`
	Intent   string   `json:"intent"`
	Text     string   `json:"text"`
	Failures []string `json:"failures,omitempty"`
}

// RunResult is the outcome of running all steps in one scenario file.
type RunResult struct {
	File     string       `json:"file"`
	Name     string       `json:"name"`
	PolicyID string       `json:"policy_id"`
	Total    int          `json:"total"`
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	Steps    []StepResult `json:"steps"`
}
