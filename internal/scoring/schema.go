package scoring

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const ruleSetSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["sets"],
  "properties": {
    "sets": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "array",
        "minItems": 1,
        "items": { "$ref": "#/definitions/rule" }
      }
    }
  },
  "definitions": {
    "rule": {
      "type": "object",
      "required": ["name", "code", "shape", "multiplier", "cardinality"],
      "additionalProperties": false,
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "code": { "type": "string", "minLength": 1 },
        "shape": { "enum": ["distance3", "triangle", "openTriangle", "outAndReturn2", "outAndReturn1"] },
        "multiplier": { "type": "number", "exclusiveMinimum": 0 },
        "cardinality": { "enum": [2, 3] },
        "minSide": { "type": "number", "exclusiveMinimum": 0, "maximum": 0.34 },
        "maxSide": { "type": "number", "exclusiveMinimum": 0.33, "maximum": 1 },
        "minDistance": { "type": "number", "minimum": 0 },
        "closing": { "enum": ["limit", "penalty"] },
        "closingFixed": { "type": "number", "minimum": 0 },
        "closingFree": { "type": "number", "minimum": 0 },
        "closingRelative": { "type": "number", "minimum": 0, "maximum": 1 },
        "precision": { "type": "integer", "minimum": 0, "maximum": 6 }
      },
      "allOf": [
        {
          "if": { "properties": { "shape": { "enum": ["triangle", "openTriangle", "outAndReturn1", "outAndReturn2"] } } },
          "then": { "required": ["closing"] }
        },
        {
          "if": { "properties": { "shape": { "const": "outAndReturn2" } } },
          "then": { "properties": { "cardinality": { "const": 2 } } },
          "else": { "properties": { "cardinality": { "const": 3 } } }
        }
      ]
    }
  }
}`

// Validator checks rule-set documents against the rule-set JSON Schema.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator() (*Validator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(ruleSetSchema))
	if err != nil {
		return nil, fmt.Errorf("compile rule-set schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate checks a decoded document.
func (v *Validator) Validate(doc map[string]interface{}) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidRuleSet, strings.Join(errs, "; "))
	}
	return nil
}
