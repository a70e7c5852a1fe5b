package retry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/becomeliminal/cogbase/llm"
)

// Content returns the raw response text. It fails only on an empty response.
func Content(resp *llm.Response) (string, error) {
	if strings.TrimSpace(resp.Text) == "" {
		return "", errors.New("empty response")
	}
	return resp.Text, nil
}

// JSON returns a ParseFunc that decodes the first JSON object or array in
// the response text into T. Markdown code fences and surrounding prose are
// ignored.
func JSON[T any]() ParseFunc[T] {
	return func(resp *llm.Response) (T, error) {
		var v T
		raw, err := extractJSON(resp.Text)
		if err != nil {
			return v, err
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return v, fmt.Errorf("decode JSON: %w", err)
		}
		return v, nil
	}
}

// Structured returns a ParseFunc for providers that fill Response.Parsed,
// such as a generator configured with a structured output tool.
func Structured[T any]() ParseFunc[T] {
	return func(resp *llm.Response) (T, error) {
		var v T
		if resp.ParsingError != nil {
			return v, resp.ParsingError
		}
		if len(resp.Parsed) == 0 {
			return v, errors.New("response carries no structured output")
		}
		if err := json.Unmarshal(resp.Parsed, &v); err != nil {
			return v, fmt.Errorf("decode structured output: %w", err)
		}
		return v, nil
	}
}

// SchemaParser validates responses against the JSON schema inferred from T.
// Struct fields are required unless tagged omitempty; `jsonschema` tags
// become field descriptions in the format instructions.
type SchemaParser[T any] struct {
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
	format   string
}

// NewSchemaParser infers and resolves the schema for T.
func NewSchemaParser[T any]() (*SchemaParser[T], error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return &SchemaParser[T]{
		schema:   schema,
		resolved: resolved,
		format:   "Respond with a single JSON value that conforms to this JSON schema:\n" + string(data),
	}, nil
}

// Schema returns the inferred schema.
func (p *SchemaParser[T]) Schema() *jsonschema.Schema {
	return p.schema
}

// FormatInstructions describes the expected output for corrective messages.
func (p *SchemaParser[T]) FormatInstructions() string {
	return p.format
}

// Parse reads structured output when the provider supplied it, otherwise
// the first JSON value in the text, validates it and decodes it into T.
func (p *SchemaParser[T]) Parse(resp *llm.Response) (T, error) {
	var v T
	raw := []byte(resp.Parsed)
	if len(raw) == 0 {
		if resp.ParsingError != nil {
			return v, resp.ParsingError
		}
		var err error
		if raw, err = extractJSON(resp.Text); err != nil {
			return v, err
		}
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return v, fmt.Errorf("decode JSON: %w", err)
	}
	if err := p.resolved.Validate(instance); err != nil {
		return v, fmt.Errorf("schema validation: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode JSON: %w", err)
	}
	return v, nil
}

// extractJSON finds the first complete JSON object or array in text.
func extractJSON(text string) ([]byte, error) {
	text = stripFences(text)
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return bytes.TrimSpace(raw), nil
		}
	}
	return nil, errors.New("no JSON value found in response")
}

// stripFences returns the body of the first fenced code block, or text
// unchanged when there is none.
func stripFences(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}
