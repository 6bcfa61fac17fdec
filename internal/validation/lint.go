package validation

import (
	"context"

	"github.com/rendis/macta/internal/bpmn"
	"github.com/rendis/macta/internal/expressions"
	"github.com/rendis/macta/pkg/schema"
)

// ModelValidator runs the validation pipeline:
// 1. Structural (JSON Schema) for requests and config documents
// 2. Model lint (flow references, gateways, reachability)
// 3. Conditions (compile, then route against sample variables)
type ModelValidator struct {
	jsonSchema *JSONSchemaValidator
	conditions *expressions.ConditionChecker
}

// NewModelValidator creates a ModelValidator.
func NewModelValidator() (*ModelValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	checker, err := expressions.NewConditionChecker()
	if err != nil {
		return nil, err
	}
	return &ModelValidator{jsonSchema: jsv, conditions: checker}, nil
}

// ValidateRequest delegates to the underlying JSONSchemaValidator.
func (mv *ModelValidator) ValidateRequest(raw []byte) *schema.ValidationResult {
	return mv.jsonSchema.ValidateRequest(raw)
}

// ValidateConfig delegates to the underlying JSONSchemaValidator.
func (mv *ModelValidator) ValidateConfig(raw []byte) *schema.ValidationResult {
	return mv.jsonSchema.ValidateConfig(raw)
}

// LintModel checks an imported graph. Condition routing is only attempted
// when the structure and every condition are valid.
func (mv *ModelValidator) LintModel(ctx context.Context, graph *bpmn.ProcessGraph, vars map[string]any) *schema.ValidationResult {
	if !graph.Imported() {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeInvalidGraph, "process graph was not imported")
		return r
	}

	result := lintModel(graph)
	if !result.Valid() {
		vars = nil
	}
	result.Merge(checkConditions(ctx, mv.conditions, graph, vars))
	return result
}

var _ Validator = (*ModelValidator)(nil)
