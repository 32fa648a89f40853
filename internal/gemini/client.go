package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/MikeSquared-Agency/caption/internal/session"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Client calls the Gemini API. The underlying genai client is created on first use.
type Client struct {
	apiKey  string
	model   string
	baseURL string

	mu     sync.Mutex
	client *genai.Client
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{apiKey: apiKey, model: model}
}

// WithBaseURL points the client at a different endpoint.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

func (c *Client) genaiClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}

	cfg := &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.client = client
	return client, nil
}

// Complete generates content and returns the concatenated non-thought text parts.
func (c *Client) Complete(ctx context.Context, system string, messages []session.Message, maxTokens int) (string, error) {
	client, err := c.genaiClient(ctx)
	if err != nil {
		return "", err
	}

	contents, extraSystem := toContents(messages)
	if len(contents) == 0 {
		return "", fmt.Errorf("no user or assistant messages to send")
	}

	config := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	if instruction := strings.TrimSpace(strings.Join(append([]string{system}, extraSystem...), "\n\n")); instruction != "" {
		config.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response content")
	}
	return text, nil
}

// toContents maps messages onto Gemini roles; system messages are returned separately.
func toContents(messages []session.Message) ([]*genai.Content, []string) {
	var contents []*genai.Content
	var system []string
	for _, m := range messages {
		switch m.Role {
		case session.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case session.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case session.RoleSystem:
			system = append(system, m.Content)
		}
	}
	return contents, system
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			sb.WriteString(part.Text)
		}
		// The first candidate with content is the answer.
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String()
}
