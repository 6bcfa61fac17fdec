package expressions

import (
	"context"

	"github.com/rendis/macta/pkg/schema"
)

// ConditionChecker compiles sequence-flow conditions with CEL first and falls
// back to Expr for dialects CEL cannot parse.
type ConditionChecker struct {
	cel  *CELEngine
	expr *ExprEngine
}

// NewConditionChecker creates a checker with fresh engines.
func NewConditionChecker() (*ConditionChecker, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &ConditionChecker{cel: celEngine, expr: NewExprEngine()}, nil
}

// Check normalizes and compiles a condition. It returns the engine that
// accepted it, or the CEL error when neither engine does.
func (c *ConditionChecker) Check(condition string) (Engine, error) {
	expression := NormalizeCondition(condition)
	celErr := c.cel.Compile(expression)
	if celErr == nil {
		return c.cel, nil
	}
	if expression != "" && c.expr.Compile(expression) == nil {
		return c.expr, nil
	}
	return nil, celErr
}

// Evaluate checks a condition and evaluates it against vars. Non-boolean
// results are reported as VALIDATION_ERROR.
func (c *ConditionChecker) Evaluate(ctx context.Context, condition string, vars map[string]any) (bool, error) {
	engine, err := c.Check(condition)
	if err != nil {
		return false, err
	}
	out, err := engine.Evaluate(ctx, NormalizeCondition(condition), vars)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"condition %q evaluated to %T, want bool", condition, out).
			WithDetails(map[string]any{"expression": condition, "engine": engine.Name()})
	}
	return b, nil
}
