package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/MikeSquared-Agency/caption/internal/session"
)

// DefaultModel is a small, fast model suited to short labels.
const DefaultModel = "claude-3-5-haiku-latest"

type Client struct {
	model  string
	client anthropic.Client
}

// NewClient returns a Client for model. Extra request options (base URL, HTTP client) are applied last.
func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	if model == "" {
		model = DefaultModel
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}, opts...)
	return &Client{
		model:  model,
		client: anthropic.NewClient(reqOpts...),
	}
}

// Complete sends a message to the Anthropic API and returns the text response.
// System-role messages are folded into the system prompt.
func (c *Client) Complete(ctx context.Context, system string, messages []session.Message, maxTokens int) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
	}

	systemParts := []string{}
	if system != "" {
		systemParts = append(systemParts, system)
	}
	for _, m := range messages {
		switch m.Role {
		case session.RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case session.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case session.RoleSystem:
			systemParts = append(systemParts, m.Content)
		}
	}
	if len(systemParts) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(systemParts, "\n\n")}}
	}
	if len(params.Messages) == 0 {
		return "", fmt.Errorf("no user or assistant messages to send")
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response content")
	}
	return sb.String(), nil
}
