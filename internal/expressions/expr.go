package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine evaluates conditions with expr-lang/expr. It accepts the looser
// dialects some modelers emit (and/or/not keywords, nil coalescing, optional
// chaining) that CEL rejects.
type ExprEngine struct {
	programs *programs[*vm.Program]
}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newPrograms[*vm.Program]()}
}

func (e *ExprEngine) Name() string { return "expr" }

func (e *ExprEngine) Compile(expression string) error {
	_, err := e.programs.load(e.Name(), expression, e.build)
	return err
}

// Evaluate runs the condition against vars. Unknown variables are nil.
func (e *ExprEngine) Evaluate(_ context.Context, expression string, vars map[string]any) (any, error) {
	prg, err := e.programs.load(e.Name(), expression, e.build)
	if err != nil {
		return nil, err
	}
	if vars == nil {
		vars = map[string]any{}
	}
	out, err := vm.Run(prg, vars)
	if err != nil {
		return nil, failed(e.Name(), expression, err)
	}
	return out, nil
}

// build compiles without a typed environment so one program serves every
// variable set a lint run supplies.
func (e *ExprEngine) build(expression string) (*vm.Program, error) {
	prg, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, rejected(e.Name(), "compile", expression, err)
	}
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
