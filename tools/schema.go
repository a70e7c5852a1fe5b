// Package tools builds JSON Schema definitions for structured model output.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema is a JSON Schema document in its decoded form.
type Schema = map[string]any

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]any, required ...string) Schema {
	schema := Schema{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Property creates a property of a JSON type ("string", "number", ...).
func Property(typ, description string) Schema {
	return Schema{
		"type":        typ,
		"description": description,
	}
}

// StringProperty creates a string property.
func StringProperty(description string) Schema { return Property("string", description) }

// NumberProperty creates a number property.
func NumberProperty(description string) Schema { return Property("number", description) }

// IntegerProperty creates an integer property.
func IntegerProperty(description string) Schema { return Property("integer", description) }

// BooleanProperty creates a boolean property.
func BooleanProperty(description string) Schema { return Property("boolean", description) }

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) Schema {
	p := StringProperty(description)
	p["enum"] = values
	return p
}

// ArrayProperty creates an array property with the given item schema.
func ArrayProperty(description string, items Schema) Schema {
	p := Property("array", description)
	p["items"] = items
	return p
}

// WithThought returns a copy of schema with a "thought" property, so the
// model can reason before committing to the structured fields.
func WithThought(schema Schema, requireThought bool) Schema {
	result := make(Schema, len(schema)+1)
	for k, v := range schema {
		result[k] = v
	}

	props := make(map[string]any)
	if existing, ok := schema["properties"].(map[string]any); ok {
		for k, v := range existing {
			props[k] = v
		}
	}
	props["thought"] = StringProperty("Your reasoning before giving the answer.")
	result["properties"] = props

	if requireThought {
		result["required"] = append(Required(schema), "thought")
	}
	return result
}

// Required returns the schema's required property names.
func Required(schema Schema) []string {
	switch req := schema["required"].(type) {
	case []string:
		out := make([]string, len(req))
		copy(out, req)
		return out
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// SchemaOf infers an object schema from T's exported fields, honoring
// `json` and `jsonschema` struct tags.
func SchemaOf[T any]() (Schema, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out Schema
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return out, nil
}

// StructuredOutput names a tool the model is forced to call; the tool's
// input is the structured value.
type StructuredOutput struct {
	Name        string
	Description string
	Schema      Schema
}

// NewStructuredOutput creates a structured output spec for an object schema.
func NewStructuredOutput(name, description string, schema Schema) (*StructuredOutput, error) {
	if name == "" {
		return nil, fmt.Errorf("structured output needs a name")
	}
	if t, _ := schema["type"].(string); t != "object" {
		return nil, fmt.Errorf("structured output %s: schema type must be object, got %q", name, t)
	}
	return &StructuredOutput{Name: name, Description: description, Schema: schema}, nil
}

// StructuredOutputFor builds a structured output spec from T.
func StructuredOutputFor[T any](name, description string) (*StructuredOutput, error) {
	schema, err := SchemaOf[T]()
	if err != nil {
		return nil, err
	}
	return NewStructuredOutput(name, description, schema)
}

// Properties returns the schema's properties.
func (s *StructuredOutput) Properties() map[string]any {
	props, _ := s.Schema["properties"].(map[string]any)
	return props
}

// Required returns the schema's required property names.
func (s *StructuredOutput) Required() []string {
	return Required(s.Schema)
}
