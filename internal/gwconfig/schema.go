package gwconfig

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON Schema shape-check run before the field-by-field
// validation in Resolve. It catches gross shape errors (wrong type for
// "channels", an unknown top-level key) with a precise field path, which
// the hand-written validator below does not attempt to reproduce.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "gateway": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "inboundPath": {"type": "string"},
        "auth": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "bearerTokenEnv": {"type": "string"},
            "bearerToken": {"type": "string"}
          }
        }
      }
    },
    "channels": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "type": {"type": "string", "enum": ["telegram", "http"]},
          "enabled": {"type": "boolean"},
          "channelEndpoint": {
            "type": "object",
            "properties": {
              "host": {"type": "string"},
              "port": {"type": "integer"},
              "healthPath": {"type": "string"},
              "invokePath": {"type": "string"},
              "startupTimeoutMs": {"type": "integer"}
            }
          },
          "settings": {"type": "object"},
          "settingsFile": {"type": "string"}
        }
      }
    }
  }
}`

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		loader := gojsonschema.NewStringLoader(configSchema)
		compiledSchema, compileErr = gojsonschema.NewSchema(loader)
	})
	return compiledSchema, compileErr
}

// validateShape checks raw config bytes against the JSON Schema and returns
// a joined error describing every shape violation found.
func validateShape(raw []byte) error {
	schema, err := getSchema()
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validating config shape: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msg := "message_gateway.config.json has shape errors:"
	for _, e := range result.Errors() {
		msg += "\n  - " + e.String()
	}
	return fmt.Errorf("%s", msg)
}
