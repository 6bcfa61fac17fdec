package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// CELEngine evaluates sequence-flow conditions as Common Expression Language.
// Process variables are not declared in BPMN, so expressions are parsed but
// never type-checked; identifiers resolve against the variables at evaluation.
type CELEngine struct {
	env      *cel.Env
	programs *programs[cel.Program]
}

// NewCELEngine creates a CEL engine with an empty declaration environment.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, programs: newPrograms[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Compile(expression string) error {
	_, err := e.programs.load(e.Name(), expression, e.build)
	return err
}

// Evaluate runs the condition with vars as the activation. Referencing a
// variable that is absent from vars is an EXECUTION_ERROR.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error) {
	prg, err := e.programs.load(e.Name(), expression, e.build)
	if err != nil {
		return nil, err
	}
	if vars == nil {
		vars = map[string]any{}
	}
	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return nil, failed(e.Name(), expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) build(expression string) (cel.Program, error) {
	ast, issues := e.env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, rejected(e.Name(), "parse", expression, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, rejected(e.Name(), "program", expression, err)
	}
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)
