package guard

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celCostLimit bounds the work a single guard expression may do per reply.
const celCostLimit = 100000

// celCache compiles each distinct expression once. Programs are safe for
// concurrent evaluation.
type celCache struct {
	once    sync.Once
	env     *cel.Env
	envErr  error
	mu      sync.RWMutex
	program map[string]cel.Program
}

func newCELCache() *celCache {
	return &celCache{program: make(map[string]cel.Program)}
}

func (c *celCache) environment() (*cel.Env, error) {
	c.once.Do(func() {
		c.env, c.envErr = cel.NewEnv(
			cel.Variable("text", cel.StringType),
			cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return c.env, c.envErr
}

func (c *celCache) compile(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.program[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	env, err := c.environment()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, ok = c.program[expr]; ok {
		return prg, nil
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	prg, err = env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	c.program[expr] = prg
	return prg, nil
}

// eval reports whether expr fires for text.
func (c *celCache) eval(expr, text string, params map[string]any) (bool, error) {
	prg, err := c.compile(expr)
	if err != nil {
		return false, err
	}
	if params == nil {
		params = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{"text": text, "params": params})
	if err != nil {
		return false, fmt.Errorf("cel eval: %w", err)
	}
	fired, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel result is not boolean")
	}
	return fired, nil
}
