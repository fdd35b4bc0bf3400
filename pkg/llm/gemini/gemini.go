// Package gemini implements the llm contracts on Google's Generative AI SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/aitutor/pdf-tutor/pkg/llm"
)

// Config configures a Client.
type Config struct {
	APIKey      string
	EmbedModel  string
	ChatModel   string
	VisionModel string
}

// Defaults fills unset models.
func (c Config) Defaults() Config {
	if c.EmbedModel == "" {
		c.EmbedModel = "text-embedding-004"
	}
	if c.ChatModel == "" {
		c.ChatModel = "gemini-2.0-flash"
	}
	if c.VisionModel == "" {
		c.VisionModel = c.ChatModel
	}
	return c
}

// Client talks to the Gemini API.
type Client struct {
	client *genai.Client
	cfg    Config
}

// New creates a Client.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	cfg = cfg.Defaults()
	opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Client{client: client, cfg: cfg}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.client.Close() }

// Embed implements llm.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.EmbeddingModel(c.cfg.EmbedModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini: embed: %w", llm.ErrEmptyResponse)
	}
	return resp.Embedding.Values, nil
}

// Chat implements llm.Chatter. System messages become the model's system
// instruction; the final user message is sent against the earlier turns.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	name := req.Model
	if name == "" {
		name = c.cfg.ChatModel
	}
	model := c.client.GenerativeModel(name)
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	system, history, last := splitMessages(req.Messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if last == "" {
		return "", fmt.Errorf("gemini: chat: no user message")
	}

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("gemini: chat: %w", err)
	}
	return responseText(resp)
}

// Describe implements llm.Describer.
func (c *Client) Describe(ctx context.Context, img llm.Image, instruction string) (string, error) {
	format := strings.TrimPrefix(img.MIME, "image/")
	resp, err := c.client.GenerativeModel(c.cfg.VisionModel).GenerateContent(ctx,
		genai.ImageData(format, img.Data),
		genai.Text(instruction),
	)
	if err != nil {
		return "", fmt.Errorf("gemini: describe: %w", err)
	}
	return responseText(resp)
}

// splitMessages folds system messages into one instruction, maps the
// remaining turns to Gemini roles and peels off the final user message.
func splitMessages(msgs []llm.Message) (system string, history []*genai.Content, last string) {
	var sys []string
	var turns []llm.Message
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if n := len(turns); n > 0 && turns[n-1].Role == llm.RoleUser {
		last = turns[n-1].Content
		turns = turns[:n-1]
	}
	for _, m := range turns {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(sys, "\n\n"), history, last
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", llm.ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", llm.ErrEmptyResponse
	}
	return sb.String(), nil
}
