package validation

import (
	"bytes"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/macta/pkg/schema"
)

const (
	requestSchemaURL = "https://macta.dev/schemas/simulation-request.json"
	configSchemaURL  = "https://macta.dev/schemas/simulation-config.json"
)

// requestSchemaJSON is the JSON Schema of the dashboard's simulation request.
const requestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://macta.dev/schemas/simulation-request.json",
  "type": "object",
  "required": ["processId", "configType", "simulationHours"],
  "properties": {
    "processId": { "type": "string", "minLength": 1 },
    "configType": { "type": "string", "pattern": "^[A-Za-z0-9_.-]+$" },
    "simulationHours": { "type": "integer", "minimum": 1, "maximum": 43800 },
    "seed": { "type": "integer", "minimum": 0 }
  },
  "additionalProperties": false
}`

// configSchemaJSON is the JSON Schema of a stored simulation config document.
const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://macta.dev/schemas/simulation-config.json",
  "type": "object",
  "required": ["arrivalPattern", "meanInterarrivalMinutes"],
  "properties": {
    "processId": { "type": "string" },
    "arrivalPattern": { "enum": ["poisson", "normal", "seasonal", "batch"] },
    "meanInterarrivalMinutes": { "type": "number", "exclusiveMinimum": 0 },
    "interarrivalStdDevMinutes": { "type": "number", "minimum": 0 },
    "serviceTimeDistribution": {
      "type": "object",
      "properties": {
        "kind": { "enum": ["exponential", "normal", "uniform", "triangular", "deterministic"] },
        "cv": { "type": "number", "minimum": 0 },
        "spread": { "type": "number", "minimum": 0, "exclusiveMaximum": 1 }
      },
      "additionalProperties": false
    },
    "resources": {
      "type": "array",
      "maxItems": 256,
      "items": { "$ref": "#/$defs/resource" }
    },
    "slaTargetMinutes": { "type": "number", "exclusiveMinimum": 0 },
    "horizonHours": { "type": "integer", "minimum": 1, "maximum": 43800 },
    "seed": { "type": "integer", "minimum": 0 },
    "priorities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["level", "weight"],
        "properties": {
          "level": { "type": "integer" },
          "weight": { "type": "number", "exclusiveMinimum": 0 }
        },
        "additionalProperties": false
      }
    },
    "seasonal": {
      "type": "object",
      "properties": {
        "hourlyMultipliers": { "$ref": "#/$defs/multipliers", "minItems": 24, "maxItems": 24 },
        "dailyMultipliers": { "$ref": "#/$defs/multipliers", "minItems": 31, "maxItems": 31 }
      },
      "additionalProperties": false
    },
    "batch": {
      "type": "object",
      "properties": {
        "size": { "type": "integer", "minimum": 0, "maximum": 10000 },
        "intervalMinutes": { "type": "number", "minimum": 0 }
      },
      "additionalProperties": false
    },
    "thresholds": {
      "type": "object",
      "properties": {
        "utilizationHighWater": { "type": "number", "minimum": 0, "maximum": 1 },
        "queueLength": { "type": "integer", "minimum": 0 },
        "windowHours": { "type": "integer", "minimum": 0 }
      },
      "additionalProperties": false
    },
    "startHourOfDay": { "type": "integer", "minimum": 0, "maximum": 23 },
    "startDayOfMonth": { "type": "integer", "minimum": 0, "maximum": 31 }
  },
  "additionalProperties": false,
  "$defs": {
    "resource": {
      "type": "object",
      "required": ["id", "count", "serviceRatePerHour"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "count": { "type": "integer", "minimum": 1 },
        "serviceRatePerHour": { "type": "number", "exclusiveMinimum": 0 }
      },
      "additionalProperties": false
    },
    "multipliers": {
      "type": "array",
      "items": { "type": "number", "minimum": 0 }
    }
  }
}`

// JSONSchemaValidator validates simulation requests and config documents
// against JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	requestSchema *jsonschema.Schema
	configSchema  *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with both schemas pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for url, text := range map[string]string{
		requestSchemaURL: requestSchemaJSON,
		configSchemaURL:  configSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	req, err := c.Compile(requestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	cfg, err := c.Compile(configSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	return &JSONSchemaValidator{requestSchema: req, configSchema: cfg}, nil
}

// ValidateRequest validates a raw simulation request body.
func (v *JSONSchemaValidator) ValidateRequest(raw []byte) *schema.ValidationResult {
	return validateDocument(v.requestSchema, raw)
}

// ValidateConfig validates a raw simulation config document.
func (v *JSONSchemaValidator) ValidateConfig(raw []byte) *schema.ValidationResult {
	return validateDocument(v.configSchema, raw)
}

func validateDocument(sch *jsonschema.Schema, raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	// UnmarshalJSON keeps numbers as json.Number, which the validator requires.
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		result.AddError("/", schema.IssueSchema, fmt.Sprintf("invalid JSON: %s", err.Error()))
		return result
	}

	if err := sch.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("/", schema.IssueSchema, err.Error())
			return result
		}
		for _, viol := range collectViolations(verr) {
			result.AddError(viol.path, schema.IssueSchema, viol.message)
		}
	}
	return result
}

type violation struct {
	path    string
	message string
}

// collectViolations walks a ValidationError tree and collects leaf errors
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		return []violation{{path: "/" + strings.Join(verr.InstanceLocation, "/"), message: verr.Error()}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
