package expressions

import (
	"context"
	"strings"
)

// Engine compiles and evaluates expressions found in process models and
// queries over stored results.
// Three implementations: CEL (gateway conditions), Expr (condition fallback), GoJQ (result queries).
type Engine interface {
	Name() string
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// NormalizeCondition strips the ${...} and #{...} wrappers modelers put
// around sequence-flow conditions and trims surrounding whitespace.
func NormalizeCondition(expression string) string {
	s := strings.TrimSpace(expression)
	for _, open := range []string{"${", "#{"} {
		if strings.HasPrefix(s, open) && strings.HasSuffix(s, "}") {
			return strings.TrimSpace(s[len(open) : len(s)-1])
		}
	}
	return s
}
