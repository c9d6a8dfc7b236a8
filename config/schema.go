package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/rulenet/errors"
)

// layerSchema constrains the shape of a JSON layer. Value ranges and
// cross-field rules are checked by Config.Validate after merging.
const layerSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "duration": {"type": ["string", "integer"]}
  },
  "properties": {
    "version": {"type": "string"},
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string"},
        "format": {"type": "string"}
      }
    },
    "linking": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "instances": {"type": "integer"},
        "prototypes": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "mode": {"type": "string"},
            "bucket": {"type": "string"},
            "timeout": {"$ref": "#/definitions/duration"},
            "cache": {
              "type": "object",
              "additionalProperties": false,
              "properties": {
                "enabled": {"type": "boolean"},
                "strategy": {"type": "string"},
                "max_size": {"type": "integer"}
              }
            }
          }
        }
      }
    },
    "nats": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "urls": {"type": "array", "items": {"type": "string"}},
        "timeout": {"$ref": "#/definitions/duration"},
        "max_reconnects": {"type": "integer"},
        "reconnect_wait": {"$ref": "#/definitions/duration"},
        "name": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "token": {"type": "string"}
      }
    },
    "notify": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "subject": {"type": "string"},
        "rate_limit": {"type": "number", "minimum": 0},
        "burst": {"type": "integer", "minimum": 0}
      }
    },
    "metrics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "port": {"type": "integer"},
        "path": {"type": "string"}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(layerSchema)

// validateLayer checks a decoded layer against layerSchema.
func validateLayer(raw map[string]any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; "))
}
