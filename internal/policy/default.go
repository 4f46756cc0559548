package policy

// Default returns the built-in HR onboarding policy used when no policy file exists.
func Default() *Policy {
	p, err := Parse([]byte(DefaultYAML()))
	if err != nil {
		panic("policy: built-in policy is invalid: " + err.Error())
	}
	return p
}

// DefaultYAML returns a commented YAML policy for init-policy.
func DefaultYAML() string {
	return `# turnguard policy
# Generated by: turnguard init-policy
#
# Turn order (cannot be changed):
#   1. The model picks the next intent from allowed_next of the current intent.
#      Choices outside that list are corrected to the first allowed intent.
#   2. The model drafts a reply.
#   3. Guards run in the order listed below. A block replaces the reply with a
#      refusal and skips the remaining guards. A redaction is seen by later guards.
#   4. The turn is written to the audit log, then committed to memory.

id: hr_onboarding
version: "1.0.0"
default_intent: start
end_intents: [goodbye]

# Conversational states. allowed_next lists the only legal successors.
# human_approval names an off-system role that must sign off on the intent.
intents:
  - id: start
    description: Greet the employee and explain what the assistant can help with
    allowed_next: [eligibility, out_of_scope]
  - id: eligibility
    description: Confirm the employee is eligible for onboarding
    required_slots: [employee_email]
    allowed_next: [collect_documents, out_of_scope, goodbye]
  - id: collect_documents
    description: Ask for identity and tax documents over the secure channel
    required_slots: [document_type]
    allowed_next: [contract_review, goodbye]
  - id: contract_review
    description: Walk through the employment contract
    allowed_next: [goodbye]
    human_approval: legal
  - id: out_of_scope
    description: Politely decline topics outside onboarding
    allowed_next: [start, goodbye]
  - id: goodbye
    description: Close the conversation
    allowed_next: []

# Advisory guidelines. Shown to operators; never change control flow.
guidelines:
  - id: no_salary_talk
    when: the employee asks about compensation
    do: refer them to their manager
    weight: 2
  - id: documents_secure
    when: documents are requested
    do: point to the secure upload channel
    weight: 1

# Guards, evaluated in order.
#   kind: pii | blocklist | channel | cel | <custom>
#   mode: block | redact | warn
guards:
  - id: pii_redact
    kind: pii
    mode: redact
  - id: compensation_terms
    kind: blocklist
    mode: warn
    params:
      terms: [salary, bonus, equity]
  - id: legal_advice
    kind: blocklist
    mode: block
    params:
      terms: [legal advice, sue]
`
}
