// Package openai implements the llm contracts on github.com/sashabaranov/go-openai.
// It also serves any OpenAI-compatible endpoint through Config.BaseURL.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aitutor/pdf-tutor/pkg/llm"
)

// Config configures a Client.
type Config struct {
	APIKey      string
	BaseURL     string
	EmbedModel  string
	ChatModel   string
	VisionModel string
}

// Defaults fills unset models.
func (c Config) Defaults() Config {
	if c.EmbedModel == "" {
		c.EmbedModel = string(openai.SmallEmbedding3)
	}
	if c.ChatModel == "" {
		c.ChatModel = openai.GPT4
	}
	if c.VisionModel == "" {
		c.VisionModel = openai.GPT4o
	}
	return c
}

// Client talks to the OpenAI API.
type Client struct {
	api *openai.Client
	cfg Config
}

// New creates a Client. Outgoing requests are traced with otelhttp.
func New(cfg Config) *Client {
	cfg = cfg.Defaults()
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return &Client{api: openai.NewClientWithConfig(oc), cfg: cfg}
}

// Embed implements llm.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.cfg.EmbedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai: embed: %w", llm.ErrEmptyResponse)
	}
	return resp.Data[0].Embedding, nil
}

// Chat implements llm.Chatter.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.ChatModel
	}
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat: %w", err)
	}
	return firstChoice(resp)
}

// Describe implements llm.Describer by sending the image as a data URL.
func (c *Client) Describe(ctx context.Context, img llm.Image, instruction string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.VisionModel,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: instruction},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    img.DataURL(),
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		}},
		MaxTokens: 1000,
	})
	if err != nil {
		return "", fmt.Errorf("openai: describe: %w", err)
	}
	return firstChoice(resp)
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", llm.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
