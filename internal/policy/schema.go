package policy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// schemaJSON describes the policy document. Guard params are kind-specific
// and only checked for being a mapping.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "intents"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "version": {"type": ["string", "number"]},
    "default_intent": {"type": "string", "minLength": 1},
    "end_intents": {"type": "array", "items": {"type": "string"}},
    "intents": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "required_slots": {"type": "array", "items": {"type": "string"}},
          "allowed_next": {"type": "array", "items": {"type": "string"}},
          "human_approval": {"type": ["string", "null"]}
        },
        "additionalProperties": false
      }
    },
    "guidelines": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string"},
          "when": {"type": "string"},
          "do": {"type": "string"},
          "weight": {"type": "integer"}
        },
        "additionalProperties": false
      }
    },
    "guards": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind"],
        "properties": {
          "id": {"type": "string"},
          "kind": {"type": "string", "minLength": 1},
          "mode": {"enum": ["block", "redact", "warn", ""]},
          "params": {"type": ["object", "null"]}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	})
	return compiledSchema, compileErr
}

// SchemaError lists every schema violation found in a policy document.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("policy: schema validation failed: %s", strings.Join(e.Violations, "; "))
}

func validateSchema(raw any) error {
	if raw == nil {
		return &SchemaError{Violations: []string{"(root): document is empty"}}
	}
	schema, err := getSchema()
	if err != nil {
		return fmt.Errorf("policy: compile schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("policy: validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return &SchemaError{Violations: violations}
}
