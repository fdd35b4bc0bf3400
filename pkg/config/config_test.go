package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "VECTOR_DIMS", "MAX_CHARS", "LINE_GAP", "IMAGE_TIMEOUT", "LLM_PROVIDER", "EMBED_PROVIDER", "VECTOR_BACKEND"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Port != "8080" || cfg.VectorDims != 1536 || cfg.MaxChars != 500 || cfg.LineGap != 5 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.ImageTimeout != 5*time.Second || cfg.ModelConcurrency != 8 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Embedder() != ProviderOpenAI {
		t.Errorf("Embedder() = %q", cfg.Embedder())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("VECTOR_DIMS", "768")
	t.Setenv("LINE_GAP", "2.5")
	t.Setenv("IMAGE_TIMEOUT", "750ms")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("EMBED_PROVIDER", "ollama")
	t.Setenv("MAX_CHARS", "not-a-number")

	cfg := FromEnv()
	if cfg.VectorDims != 768 || cfg.LineGap != 2.5 || cfg.ImageTimeout != 750*time.Millisecond {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxChars != 500 {
		t.Errorf("unparsable MAX_CHARS should fall back, got %d", cfg.MaxChars)
	}
	if cfg.LLMProvider != ProviderGemini || cfg.Embedder() != ProviderOllama {
		t.Errorf("providers = %q, %q", cfg.LLMProvider, cfg.Embedder())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"bad provider", func(c *Config) { c.LLMProvider = "anthropic" }, "LLM_PROVIDER"},
		{"bad embedder", func(c *Config) { c.EmbedProvider = "bert" }, "EMBED_PROVIDER"},
		{"bad backend", func(c *Config) { c.VectorBackend = "pinecone" }, "VECTOR_BACKEND"},
		{"zero dims", func(c *Config) { c.VectorDims = 0 }, "VECTOR_DIMS"},
		{"zero max chars", func(c *Config) { c.MaxChars = 0 }, "MAX_CHARS"},
		{"negative gap", func(c *Config) { c.LineGap = -1 }, "LINE_GAP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{LLMProvider: ProviderOpenAI, VectorBackend: BackendMemory, VectorDims: 4, MaxChars: 10}
			tt.mod(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("QDRANT_COLLECTION=from_dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("QDRANT_COLLECTION", "")
	os.Unsetenv("QDRANT_COLLECTION")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QdrantCollection != "from_dotenv" {
		t.Errorf("collection = %q", cfg.QdrantCollection)
	}
}
