package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one requested output column: a name plus an opaque descriptor the
// caller supplied. Only the name participates in extraction; the descriptor
// is carried through untouched.
type Field struct {
	Name       string
	Descriptor json.RawMessage
}

// Schema is the ordered set of fields a caller wants extracted from each
// image. Order is preserved from the submitted JSON object and drives output
// column order.
type Schema []Field

// ParseSchemaJSON decodes a JSON object into a Schema, preserving key order.
// encoding/json maps lose ordering, so the object is walked token by token.
func ParseSchemaJSON(raw []byte) (Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("parse schema: expected JSON object, got %v", tok)
	}

	var s Schema
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse schema: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("parse schema: non-string key %v", keyTok)
		}
		var desc json.RawMessage
		if err := dec.Decode(&desc); err != nil {
			return nil, fmt.Errorf("parse schema: field %q: %w", key, err)
		}
		s = append(s, Field{Name: key, Descriptor: desc})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("parse schema: no fields")
	}
	return s, nil
}

// SchemaFromFields builds a Schema from bare field names, in order.
func SchemaFromFields(names []string) Schema {
	s := make(Schema, 0, len(names))
	for _, n := range names {
		s = append(s, Field{Name: n})
	}
	return s
}

// Keys returns the field names in schema order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s))
	for i, f := range s {
		keys[i] = f.Name
	}
	return keys
}

// Joined returns the field names joined with spaces, the form handed to the
// script classifier.
func (s Schema) Joined() string {
	return strings.Join(s.Keys(), " ")
}

// Enforce builds a fresh mapping containing exactly the schema's keys.
// Values present in raw are copied; missing values become explicit nils.
// Keys the model invented are discarded.
func (s Schema) Enforce(raw map[string]any) map[string]any {
	out := make(map[string]any, len(s))
	for _, f := range s {
		out[f.Name] = raw[f.Name]
	}
	return out
}
