package expressions

import (
	"sync"

	"github.com/rendis/macta/pkg/schema"
)

// programs memoises compiled programs by source text. Compilation runs
// outside the lock; when two goroutines race, the first stored program wins.
type programs[P any] struct {
	mu    sync.RWMutex
	byExp map[string]P
}

func newPrograms[P any]() *programs[P] {
	return &programs[P]{byExp: make(map[string]P)}
}

func (c *programs[P]) load(engine, expression string, compile func(string) (P, error)) (P, error) {
	var zero P
	if expression == "" {
		return zero, schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", engine)
	}

	c.mu.RLock()
	p, ok := c.byExp[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := compile(expression)
	if err != nil {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.byExp[expression]; ok {
		return prev, nil
	}
	c.byExp[expression] = p
	return p, nil
}

func (c *programs[P]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byExp)
}

// rejected reports an expression an engine cannot compile.
func rejected(engine, stage, expression string, err error) *schema.MactaError {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s %s error in %q: %s", engine, stage, expression, err).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "engine": engine})
}

// failed reports a compiled expression that errored against its input.
func failed(engine, expression string, err error) *schema.MactaError {
	return schema.NewErrorf(schema.ErrCodeExecution, "%s evaluation failed for %q: %s", engine, expression, err).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "engine": engine})
}
