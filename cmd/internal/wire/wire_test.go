package wire

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aitutor/pdf-tutor/engine/semantic"
	"github.com/aitutor/pdf-tutor/pkg/config"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func localConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DatabaseDSN:      ":memory:",
		UploadDir:        t.TempDir(),
		VectorBackend:    config.BackendMemory,
		QdrantCollection: "test",
		VectorDims:       4,
		LLMProvider:      config.ProviderOllama,
		OllamaURL:        "http://127.0.0.1:1",
		ChatModel:        "llama3.1:8b",
		MaxChars:         500,
		LineGap:          5,
		ModelConcurrency: 2,
		ModelRPS:         5,
	}
}

func TestBuild_Everything(t *testing.T) {
	app, err := Build(context.Background(), localConfig(t), discard(), PartChunking|PartRetrieval)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if app.Store == nil || app.Files == nil || app.Index == nil || app.Models == nil {
		t.Fatalf("infrastructure missing: %+v", app)
	}
	if app.Orchestrator == nil || app.Retriever == nil || app.Sanitizer == nil || app.Tutor == nil {
		t.Fatalf("pipeline missing: %+v", app)
	}
	if _, ok := app.Index.(*semantic.MemoryIndex); !ok {
		t.Errorf("index = %T, want memory", app.Index)
	}
	info, err := app.Index.Info(context.Background())
	if err != nil || info.Dims != 4 || info.Name != "test" {
		t.Errorf("Info = %+v, %v", info, err)
	}
}

func TestBuild_OnlyIndex(t *testing.T) {
	app, err := Build(context.Background(), localConfig(t), discard(), PartIndex)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()
	if app.Index == nil {
		t.Fatal("index missing")
	}
	if app.Store != nil || app.Models != nil || app.Orchestrator != nil {
		t.Errorf("built more than asked for: %+v", app)
	}
}

func TestBuild_ModelErrorClosesEverything(t *testing.T) {
	cfg := localConfig(t)
	cfg.LLMProvider = config.ProviderOpenAI
	app, err := Build(context.Background(), cfg, discard(), PartRetrieval)
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("err = %v", err)
	}
	if app != nil {
		t.Errorf("app = %+v, want nil", app)
	}
}

func TestNewModels(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"ollama", func(*config.Config) {}, ""},
		{"openai with base url", func(c *config.Config) {
			c.LLMProvider = config.ProviderOpenAI
			c.OpenAIBaseURL = "http://localhost:8000/v1"
		}, ""},
		{"split providers", func(c *config.Config) {
			c.LLMProvider = config.ProviderOpenAI
			c.OpenAIKey = "sk-test"
			c.EmbedProvider = config.ProviderOllama
		}, ""},
		{"gemini without key", func(c *config.Config) { c.LLMProvider = config.ProviderGemini }, "GEMINI_API_KEY"},
		{"unknown", func(c *config.Config) { c.LLMProvider = "mystery" }, "unknown provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := localConfig(t)
			tt.mutate(&cfg)
			m, err := NewModels(context.Background(), cfg, discard())
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewModels: %v", err)
			}
			defer m.Close()
			if m.Embedder == nil || m.Chatter == nil || m.Describer == nil {
				t.Errorf("models = %+v", m)
			}
		})
	}
}

func TestRAGOptions(t *testing.T) {
	cfg := localConfig(t)
	opts := RAGOptions(cfg)
	if opts.ChatModel != "llama3.1:8b" || opts.SanitizeModel != "llama3.1:8b" {
		t.Errorf("models = %q / %q", opts.ChatModel, opts.SanitizeModel)
	}
	if opts.Workers != 2 || opts.ChatTemperature != 0.5 || opts.SanitizeTemperature != 0.1 || opts.MaxTokens != 1000 {
		t.Errorf("opts = %+v", opts)
	}

	cfg.SanitizeModel = "small"
	cfg.ModelConcurrency = 0
	opts = RAGOptions(cfg)
	if opts.SanitizeModel != "small" || opts.Workers != 8 {
		t.Errorf("opts = %+v", opts)
	}
}

func TestNewLogger(t *testing.T) {
	if !NewLogger("debug").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not enabled")
	}
	if NewLogger("bogus").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("unknown level should fall back to info")
	}
}
