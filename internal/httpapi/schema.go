package httpapi

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const overrideRequestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["slug", "locale", "patch"],
	"properties": {
		"pin": {"type": "string"},
		"slug": {"type": "string", "minLength": 1, "maxLength": 128},
		"locale": {"type": "string", "pattern": "^[a-z]{2}(-[A-Za-z]{2})?$"},
		"patch": {"type": "object"}
	},
	"additionalProperties": false
}`

const liveDocRequestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["slug", "locale", "frontmatter", "content"],
	"properties": {
		"pin": {"type": "string"},
		"slug": {"type": "string", "minLength": 1, "maxLength": 128},
		"locale": {"type": "string", "pattern": "^[a-z]{2}(-[A-Za-z]{2})?$"},
		"frontmatter": {
			"type": "object",
			"required": ["slug", "title"],
			"properties": {
				"slug": {"type": "string"},
				"title": {"type": "string"},
				"tags": {"type": "array", "items": {"type": "string"}},
				"muscles": {"type": "array", "items": {"type": "string"}},
				"themeCompatibility": {"type": "array", "items": {"type": "string"}},
				"level": {"type": "string"},
				"equipment": {"type": "array", "items": {"type": "string"}},
				"media": {"type": "string"},
				"status": {"type": "string", "enum": ["draft", "ready"]}
			}
		},
		"content": {"type": "string"}
	},
	"additionalProperties": false
}`

type requestSchemas struct {
	override *jsonschema.Schema
	liveDoc  *jsonschema.Schema
}

func compileRequestSchemas() (*requestSchemas, error) {
	compiler := jsonschema.NewCompiler()
	for name, raw := range map[string]string{
		"override.json": overrideRequestSchema,
		"live-doc.json": liveDocRequestSchema,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	override, err := compiler.Compile("override.json")
	if err != nil {
		return nil, fmt.Errorf("compile override schema: %w", err)
	}
	liveDoc, err := compiler.Compile("live-doc.json")
	if err != nil {
		return nil, fmt.Errorf("compile live-doc schema: %w", err)
	}
	return &requestSchemas{override: override, liveDoc: liveDoc}, nil
}

// validateBody checks a raw request body against a compiled schema and
// returns a 400-ready error message on failure.
func validateBody(sch *jsonschema.Schema, body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid json body")
	}
	if err := sch.Validate(inst); err != nil {
		return err
	}
	return nil
}
