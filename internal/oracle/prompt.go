package oracle

import (
	"fmt"
	"strings"

	"github.com/ppiankov/turnguard/internal/memory"
)

const chooseSystemPrompt = `You route a conversation between states.
Answer with exactly one state id from the list you are given. No punctuation, no commentary.`

// choosePrompt builds the user message for an intent choice.
func choosePrompt(allowed []string, c IntentContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current state: %s\n", c.Current)
	fmt.Fprintf(&b, "Allowed next states: %s\n", strings.Join(allowed, ", "))
	if c.UserText != "" {
		fmt.Fprintf(&b, "Latest user message: %s\n", c.UserText)
	}
	b.WriteString("Next state:")
	return b.String()
}

// draftSystem appends the chosen intent to the operator system prompt.
func draftSystem(system string, c DraftContext) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Current conversation state: %s.", c.Intent)
	if c.Description != "" {
		fmt.Fprintf(&b, " Goal: %s.", c.Description)
	}
	return b.String()
}

// cleanAnswer trims whitespace and wrapping quotes or trailing punctuation
// that models add around a single token answer.
func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`\"'")
	s = strings.TrimRight(s, ".!")
	return strings.TrimSpace(s)
}

// chatMessages converts history into OpenAI chat roles.
func chatMessages(system string, history []memory.Message) []map[string]string {
	msgs := make([]map[string]string, 0, len(history)+1)
	if system != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": system})
	}
	for _, m := range history {
		msgs = append(msgs, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	return msgs
}
