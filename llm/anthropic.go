package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/core"
	"github.com/becomeliminal/cogbase/tools"
)

// AnthropicConfig configures AnthropicGenerator.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string

	// Model defaults to claude-sonnet-4-20250514.
	Model string

	// MaxTokens defaults to 4096.
	MaxTokens int64

	// Output, when set, forces the model to answer through this tool; the
	// tool input becomes Response.Parsed.
	Output *tools.StructuredOutput

	Logger logrus.FieldLogger
}

// DefaultAnthropicConfig returns sensible defaults.
var DefaultAnthropicConfig = &AnthropicConfig{
	Model:     "claude-sonnet-4-20250514",
	MaxTokens: 4096,
}

// AnthropicGenerator calls the Anthropic Messages API.
// Retries are left to the retry protocol, so the SDK's own are disabled.
type AnthropicGenerator struct {
	client *anthropic.Client
	config AnthropicConfig
	logger logrus.FieldLogger
}

// NewAnthropicGenerator creates a generator.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: APIKey is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicConfig.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultAnthropicConfig.MaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicGenerator{
		client: &client,
		config: cfg,
		logger: cfg.Logger.WithFields(logrus.Fields{"component": "llm", "provider": "anthropic"}),
	}, nil
}

// Generate sends the history and returns the text, plus the forced tool
// input when a structured output is configured.
func (g *AnthropicGenerator) Generate(ctx context.Context, messages []core.Message) (*Response, error) {
	params := g.buildParams(messages)

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}
	g.logger.WithFields(logrus.Fields{
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	}).Debug("generated")

	return g.convertResponse(resp), nil
}

func (g *AnthropicGenerator) buildParams(messages []core.Message) anthropic.MessageNewParams {
	system, rest := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.config.Model),
		MaxTokens: g.config.MaxTokens,
		Messages:  convertMessages(rest),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n\n")},
		}
	}

	if out := g.config.Output; out != nil {
		params.Tools = []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        out.Name,
				Description: anthropic.String(out.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: out.Properties(),
					Required:   out.Required(),
				},
			},
		}}
		params.ToolChoice = anthropic.ToolChoiceParamOfTool(out.Name)
	}
	return params
}

func convertMessages(messages []core.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == core.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}

func (g *AnthropicGenerator) convertResponse(msg *anthropic.Message) *Response {
	out := &Response{}
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			if g.config.Output == nil || b.Name != g.config.Output.Name {
				continue
			}
			out.Parsed = json.RawMessage(b.Input)
		}
	}
	out.Text = text.String()

	if g.config.Output != nil {
		if out.Parsed == nil {
			out.ParsingError = fmt.Errorf("model did not call %s", g.config.Output.Name)
		} else if out.Text == "" {
			// The tool input is the answer; keep it in the history too.
			out.Text = string(out.Parsed)
		}
	}
	return out
}
