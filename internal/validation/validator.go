package validation

import (
	"context"

	"github.com/rendis/macta/internal/bpmn"
	"github.com/rendis/macta/pkg/schema"
)

// Validator checks inbound documents before they reach the analysis core.
// JSON documents use JSON Schema Draft 2020-12; process models are linted
// structurally and their gateway conditions compiled.
type Validator interface {
	ValidateRequest(raw []byte) *schema.ValidationResult
	ValidateConfig(raw []byte) *schema.ValidationResult
	LintModel(ctx context.Context, graph *bpmn.ProcessGraph, vars map[string]any) *schema.ValidationResult
}
