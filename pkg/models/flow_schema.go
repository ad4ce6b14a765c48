package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// flowConfigSchema validates imported flow configuration documents before
// they are decoded into Flow structs. Imports come from external tooling, so
// structural checks happen up front rather than after partial decoding.
const flowConfigSchema = `{
	"type": "object",
	"required": ["name", "scope", "categories"],
	"properties": {
		"name": {"type": "string", "minLength": 3},
		"description": {"type": "string"},
		"scope": {"type": "string", "enum": ["global", "tenant"]},
		"tenant_id": {"type": "string"},
		"categories": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "name", "tasks"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"order": {"type": "integer"},
					"tasks": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["id", "title", "completion_type"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"title": {"type": "string", "minLength": 1},
								"description": {"type": "string"},
								"required": {"type": "boolean"},
								"completion_type": {"type": "string", "enum": ["manual", "auto"]},
								"estimated_time": {"type": "string"},
								"cta_label": {"type": "string"},
								"cta_target": {"type": "string"},
								"order": {"type": "integer"},
								"depends_on": {"type": "array", "items": {"type": "string"}}
							}
						}
					}
				}
			}
		}
	}
}`

var flowSchemaLoader = gojsonschema.NewStringLoader(flowConfigSchema)

// ValidateFlowConfig checks a raw flow configuration document against the
// flow schema. Returns a single error listing every violation.
func ValidateFlowConfig(document []byte) error {
	result, err := gojsonschema.Validate(flowSchemaLoader, gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("failed to validate flow config: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return errors.New("invalid flow config: " + strings.Join(details, "; "))
}
