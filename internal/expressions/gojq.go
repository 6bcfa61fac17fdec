package expressions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/rendis/macta/pkg/schema"
)

// GoJQEngine runs jq programs over stored simulation responses.
type GoJQEngine struct {
	programs *programs[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newPrograms[*gojq.Code]()}
}

func (e *GoJQEngine) Name() string { return "jq" }

func (e *GoJQEngine) Compile(expression string) error {
	_, err := e.programs.load(e.Name(), expression, e.build)
	return err
}

// Evaluate returns nil for no output, the value for one output and []any
// for several.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	results, err := e.EvaluateAll(ctx, expression, data)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// EvaluateAll collects every output of the program.
func (e *GoJQEngine) EvaluateAll(ctx context.Context, expression string, data map[string]any) ([]any, error) {
	code, err := e.programs.load(e.Name(), expression, e.build)
	if err != nil {
		return nil, err
	}

	var results []any
	iter := code.RunWithContext(ctx, data)
	for {
		v, ok := iter.Next()
		if !ok {
			return results, nil
		}
		if err, isErr := v.(error); isErr {
			return nil, failed(e.Name(), expression, err)
		}
		results = append(results, v)
	}
}

// Query runs expression against the JSON form of v, so field names and
// numbers match what API clients see.
func (e *GoJQEngine) Query(ctx context.Context, expression string, v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode query input: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "query input must be a JSON object").WithCause(err)
	}
	return e.Evaluate(ctx, expression, data)
}

func (e *GoJQEngine) build(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, rejected(e.Name(), "parse", expression, err)
	}
	// No environment: $ENV and env are always empty.
	code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, rejected(e.Name(), "compile", expression, err)
	}
	return code, nil
}

var _ Engine = (*GoJQEngine)(nil)
