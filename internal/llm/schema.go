package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

// BuildFieldSchema returns a JSON-Schema (draft 2020-12 subset) describing
// the expected model output: a JSON object keyed by the requested fields.
// Values are left unconstrained; enforcement to the exact key set
// happens afterwards.
func BuildFieldSchema(s entity.Schema) map[string]any {
	props := make(map[string]any, len(s))
	for _, f := range s {
		props[f.Name] = map[string]any{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// ValidateJSONAgainstSchema validates data against schemaMap.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// decodeFields strips markdown fences from model output, validates it is a
// schema-shaped object, and decodes it.
func decodeFields(content string, s entity.Schema) (map[string]any, error) {
	raw := []byte(StripFences(content))
	if err := ValidateJSONAgainstSchema(BuildFieldSchema(s), raw); err != nil {
		return nil, fmt.Errorf("ai returned invalid json: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ai returned invalid json: %w", err)
	}
	return out, nil
}
