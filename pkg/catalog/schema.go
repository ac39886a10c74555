package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the JSON Schema a ServerDefinition must satisfy
// before an install or update is accepted.
const definitionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "transport", "command"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"transport": {"type": "string", "enum": ["stdio", "http"]},
		"command": {"type": "string", "minLength": 1},
		"args": {"type": ["array", "null"], "items": {"type": "string"}},
		"env": {"type": ["object", "null"], "additionalProperties": {"type": "string"}}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// ValidateSchema checks def's wire shape against definitionSchema, returning
// a single error joining every violation found. This runs ahead of (and in
// addition to) Validate's transport-specific invariant checks. The document
// checked is the JSON encoding of the typed struct, so every key is present
// with its Go type (nil args and env encode as null, which the schema
// accepts); the violations it reports are an empty name or command and a
// transport outside "stdio"/"http".
func ValidateSchema(def ServerDefinition) error {
	docBytes, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("catalog: marshaling definition for schema check: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(docBytes))
	if err != nil {
		return fmt.Errorf("catalog: schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("catalog: definition %q failed schema validation: %s", def.Name, strings.Join(msgs, "; "))
}
