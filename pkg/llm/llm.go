// Package llm defines the model-provider contracts the pipeline depends on.
// Providers live in subpackages (openai, gemini) and in pkg/ollama.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers with no content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a single completion request. Zero Model uses the
// provider's configured chat model.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Image is an encoded image handed to a vision model.
type Image struct {
	MIME string // e.g. image/png
	Data []byte
}

// DataURL renders the image as an RFC 2397 data URL.
func (i Image) DataURL() string {
	return "data:" + i.MIME + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chatter produces a chat completion.
type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Describer asks a vision-capable model about an image.
type Describer interface {
	Describe(ctx context.Context, img Image, instruction string) (string, error)
}

// EmbedFunc adapts a function to Embedder.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedFunc) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

// ChatFunc adapts a function to Chatter.
type ChatFunc func(ctx context.Context, req ChatRequest) (string, error)

func (f ChatFunc) Chat(ctx context.Context, req ChatRequest) (string, error) { return f(ctx, req) }

// DescribeFunc adapts a function to Describer.
type DescribeFunc func(ctx context.Context, img Image, instruction string) (string, error)

func (f DescribeFunc) Describe(ctx context.Context, img Image, instruction string) (string, error) {
	return f(ctx, img, instruction)
}
