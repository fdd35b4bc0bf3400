package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aitutor/pdf-tutor/pkg/config"
	"github.com/aitutor/pdf-tutor/pkg/llm"
	"github.com/aitutor/pdf-tutor/pkg/llm/gemini"
	"github.com/aitutor/pdf-tutor/pkg/llm/openai"
	"github.com/aitutor/pdf-tutor/pkg/ollama"
	"github.com/aitutor/pdf-tutor/pkg/resilience"
)

// Ollama defaults used when no model is configured.
const (
	ollamaEmbedModel  = "nomic-embed-text"
	ollamaChatModel   = "llama3.1:8b"
	ollamaVisionModel = "llava"
)

// provider is everything one backend can do.
type provider interface {
	llm.Embedder
	llm.Chatter
	llm.Describer
}

// Models are the guarded model clients: chat and vision come from
// LLM_PROVIDER, embeddings from EMBED_PROVIDER.
type Models struct {
	Embedder  llm.Embedder
	Chatter   llm.Chatter
	Describer llm.Describer

	closers []func() error
}

// NewModels builds each configured provider once and wraps it in a
// rate limiter and circuit breaker shared by all of its roles.
func NewModels(ctx context.Context, cfg config.Config, log *slog.Logger) (*Models, error) {
	m := &Models{}
	built := map[string]provider{}
	get := func(name string) (provider, error) {
		if p, ok := built[name]; ok {
			return p, nil
		}
		p, err := m.newProvider(ctx, name, cfg)
		if err != nil {
			return nil, err
		}
		opts := resilience.DefaultBreakerOpts
		opts.Logger = log
		g := resilience.NewGuard(name, cfg.ModelRPS, opts)
		p = guarded{
			Embedder:  llm.GuardEmbedder(p, g),
			Chatter:   llm.GuardChatter(p, g),
			Describer: llm.GuardDescriber(p, g),
		}
		built[name] = p
		return p, nil
	}

	chat, err := get(cfg.LLMProvider)
	if err != nil {
		m.Close()
		return nil, err
	}
	emb, err := get(cfg.Embedder())
	if err != nil {
		m.Close()
		return nil, err
	}
	m.Chatter, m.Describer, m.Embedder = chat, chat, emb
	log.Info("model providers ready", "chat", cfg.LLMProvider, "embed", cfg.Embedder())
	return m, nil
}

func (m *Models) newProvider(ctx context.Context, name string, cfg config.Config) (provider, error) {
	switch name {
	case config.ProviderOpenAI:
		if cfg.OpenAIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, errors.New("wire: OPENAI_API_KEY is required for the openai provider")
		}
		return openai.New(openai.Config{
			APIKey:      cfg.OpenAIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			EmbedModel:  cfg.EmbedModel,
			ChatModel:   cfg.ChatModel,
			VisionModel: cfg.VisionModel,
		}), nil
	case config.ProviderGemini:
		if cfg.GeminiKey == "" {
			return nil, errors.New("wire: GEMINI_API_KEY is required for the gemini provider")
		}
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.GeminiKey,
			EmbedModel:  cfg.EmbedModel,
			ChatModel:   cfg.ChatModel,
			VisionModel: cfg.VisionModel,
		})
		if err != nil {
			return nil, err
		}
		m.closers = append(m.closers, c.Close)
		return c, nil
	case config.ProviderOllama:
		return ollama.NewClient(cfg.OllamaURL,
			or(cfg.EmbedModel, ollamaEmbedModel),
			or(cfg.ChatModel, ollamaChatModel),
			or(cfg.VisionModel, ollamaVisionModel),
		), nil
	}
	return nil, fmt.Errorf("wire: unknown provider %q", name)
}

// Close releases provider connections.
func (m *Models) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c())
	}
	m.closers = nil
	return errors.Join(errs...)
}

type guarded struct {
	llm.Embedder
	llm.Chatter
	llm.Describer
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
