// Package ollama implements the llm contracts on a local Ollama server's HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aitutor/pdf-tutor/pkg/llm"
)

// Client talks to Ollama.
type Client struct {
	baseURL     string
	embedModel  string
	chatModel   string
	visionModel string
	client      *http.Client
}

// NewClient creates an Ollama client. An empty visionModel reuses chatModel.
func NewClient(baseURL, embedModel, chatModel, visionModel string) *Client {
	if visionModel == "" {
		visionModel = chatModel
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		embedModel:  embedModel,
		chatModel:   chatModel,
		visionModel: visionModel,
		client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatReq struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResp struct {
	Message chatMessage `json:"message"`
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Embed implements llm.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var result embedResp
	if err := c.post(ctx, "/api/embeddings", embedReq{Model: c.embedModel, Prompt: text}, &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: %w", llm.ErrEmptyResponse)
	}
	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Chat implements llm.Chatter.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.chatModel
	}
	msgs := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	return c.chat(ctx, chatReq{
		Model:    model,
		Messages: msgs,
		Options:  &chatOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	})
}

// Describe implements llm.Describer. Ollama takes images as bare base64.
func (c *Client) Describe(ctx context.Context, img llm.Image, instruction string) (string, error) {
	return c.chat(ctx, chatReq{
		Model: c.visionModel,
		Messages: []chatMessage{{
			Role:    llm.RoleUser,
			Content: instruction,
			Images:  []string{base64.StdEncoding.EncodeToString(img.Data)},
		}},
	})
}

func (c *Client) chat(ctx context.Context, req chatReq) (string, error) {
	var result chatResp
	if err := c.post(ctx, "/api/chat", req, &result); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if strings.TrimSpace(result.Message.Content) == "" {
		return "", fmt.Errorf("ollama chat: %w", llm.ErrEmptyResponse)
	}
	return result.Message.Content, nil
}
