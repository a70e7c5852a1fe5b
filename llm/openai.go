package llm

import (
	"context"
	"encoding/json"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/core"
)

// OpenAIConfig configures OpenAIGenerator.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	// Model defaults to gpt-4o-mini.
	Model string

	MaxTokens   int
	Temperature float32

	// JSONMode asks for a JSON object response. Response.Parsed then holds
	// the content when it is valid JSON.
	JSONMode bool

	Logger logrus.FieldLogger
}

// DefaultOpenAIConfig returns sensible defaults.
var DefaultOpenAIConfig = &OpenAIConfig{
	Model: goopenai.GPT4oMini,
}

// OpenAIGenerator calls the chat completions API.
type OpenAIGenerator struct {
	client *goopenai.Client
	config OpenAIConfig
	logger logrus.FieldLogger
}

// NewOpenAIGenerator creates a generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: APIKey is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIConfig.Model
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client: goopenai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: cfg.Logger.WithFields(logrus.Fields{"component": "llm", "provider": "openai"}),
	}, nil
}

// Generate sends the history as chat messages.
func (g *OpenAIGenerator) Generate(ctx context.Context, messages []core.Message) (*Response, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       g.config.Model,
		Messages:    make([]goopenai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	if g.config.JSONMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai generate: no choices returned")
	}
	g.logger.WithField("total_tokens", resp.Usage.TotalTokens).Debug("generated")

	out := &Response{Text: resp.Choices[0].Message.Content}
	if g.config.JSONMode {
		if json.Valid([]byte(out.Text)) {
			out.Parsed = json.RawMessage(out.Text)
		} else {
			out.ParsingError = fmt.Errorf("response is not valid JSON")
		}
	}
	return out, nil
}
