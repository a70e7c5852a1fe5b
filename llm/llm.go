// Package llm defines the generation contract used by the retry protocol and
// the agent loop, with Anthropic and OpenAI implementations.
package llm

import (
	"context"
	"encoding/json"

	"github.com/becomeliminal/cogbase/core"
)

// Response is one generation result.
//
// Providers that produce structured output fill Parsed with the structured
// value, or ParsingError when the model's output could not be read as one.
// Text is always the raw response content.
type Response struct {
	Text         string
	Parsed       json.RawMessage
	ParsingError error
}

// Generator turns a conversation history into a response.
type Generator interface {
	Generate(ctx context.Context, messages []core.Message) (*Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, messages []core.Message) (*Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, messages []core.Message) (*Response, error) {
	return f(ctx, messages)
}

// splitSystem separates system messages from the conversation. Providers
// that take the system prompt as a separate field join them in order.
func splitSystem(messages []core.Message) (system []string, rest []core.Message) {
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
