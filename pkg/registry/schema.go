package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "registry.schema.json"

const registrySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["backends", "tools"],
  "properties": {
    "backends": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"enum": ["http_mcp", "script"]},
          "url": {"type": "string"},
          "command": {"type": "string"},
          "auth_header_key": {"type": "string"},
          "timeout": {"type": "string"},
          "headers": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    },
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "backend", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "backend": {"type": "string", "minLength": 1},
          "type": {"enum": ["mcp-forward", "script"]},
          "description": {"type": "string"},
          "schema": {"type": "string"},
          "policy": {
            "type": ["object", "null"],
            "properties": {
              "read_only": {"type": "boolean"},
              "max_rows": {"type": ["integer", "null"], "minimum": 0},
              "op_key": {"type": "string"},
              "write_ops": {"type": "array", "items": {"type": "string"}},
              "limit_key": {"type": "string"},
              "inspect_query": {"type": "boolean"},
              "query_key": {"type": "string"},
              "rego": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(registrySchema))
		if err != nil {
			compileErr = fmt.Errorf("registry schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("registry schema: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(schemaURL)
	})
	return compiledSchema, compileErr
}

// validateStructure checks the decoded document against the registry schema.
func validateStructure(doc any) error {
	sch, err := schema()
	if err != nil {
		return err
	}

	// Round-trip through JSON so numbers arrive as json.Number.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
