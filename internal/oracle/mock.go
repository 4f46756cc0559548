package oracle

import (
	"context"
	"fmt"

	"github.com/ppiankov/turnguard/internal/memory"
)

// Mock is a deterministic, offline oracle. It always stays inside allowed.
type Mock struct{}

// NewMock returns a Mock oracle.
func NewMock() *Mock { return &Mock{} }

// ChooseNextIntent returns the first allowed intent, or the fallback when
// nothing is allowed.
func (m *Mock) ChooseNextIntent(ctx context.Context, allowed []string, c IntentContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(allowed) == 0 {
		return c.Fallback, nil
	}
	return allowed[0], nil
}

// DraftReply echoes the last user message and names the intent.
func (m *Mock) DraftReply(ctx context.Context, system string, history []memory.Message, c DraftContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("I understand: '%s'. Proceeding with %s.", memory.LastUser(history), c.Intent), nil
}
