// Package config loads process configuration from the environment, with an
// optional .env file. Binaries build one Config in main and pass the pieces
// each component needs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by LLM_PROVIDER and EMBED_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Vector backends accepted by VECTOR_BACKEND.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	MetricsPort int
	CORSOrigin  string
	LogLevel    string

	DatabaseDSN string
	UploadDir   string
	NATSURL     string

	VectorBackend    string
	QdrantAddr       string
	QdrantCollection string
	VectorDims       int

	LLMProvider   string
	EmbedProvider string
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	OllamaURL     string
	EmbedModel    string
	ChatModel     string
	SanitizeModel string
	VisionModel   string

	MaxChars         int
	LineGap          float64
	ImageTimeout     time.Duration
	ModelConcurrency int
	ModelRPS         float64

	OTelEndpoint string
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("config: load .env: %w", err)
		}
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

// FromEnv builds a Config from the environment with defaults applied.
func FromEnv() Config {
	return Config{
		Port:        envOr("PORT", "8080"),
		MetricsPort: envInt("METRICS_PORT", 0),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		DatabaseDSN: envOr("DATABASE_DSN", "pdftutor.db"),
		UploadDir:   envOr("UPLOAD_DIR", "./uploads"),
		NATSURL:     envOr("NATS_URL", ""),

		VectorBackend:    envOr("VECTOR_BACKEND", BackendQdrant),
		QdrantAddr:       envOr("QDRANT_ADDR", "localhost:6334"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "pdf_chunks"),
		VectorDims:       envInt("VECTOR_DIMS", 1536),

		LLMProvider:   envOr("LLM_PROVIDER", ProviderOpenAI),
		EmbedProvider: envOr("EMBED_PROVIDER", ""),
		OpenAIKey:     envOr("OPENAI_API_KEY", ""),
		OpenAIBaseURL: envOr("OPENAI_BASE_URL", ""),
		GeminiKey:     envOr("GEMINI_API_KEY", ""),
		OllamaURL:     envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:    envOr("EMBED_MODEL", ""),
		ChatModel:     envOr("CHAT_MODEL", ""),
		SanitizeModel: envOr("SANITIZE_MODEL", ""),
		VisionModel:   envOr("VISION_MODEL", ""),

		MaxChars:         envInt("MAX_CHARS", 500),
		LineGap:          envFloat("LINE_GAP", 5),
		ImageTimeout:     envDuration("IMAGE_TIMEOUT", 5*time.Second),
		ModelConcurrency: envInt("MODEL_CONCURRENCY", 8),
		ModelRPS:         envFloat("MODEL_RPS", 10),

		OTelEndpoint: envOr("OTEL_ENDPOINT", ""),
	}
}

// Embedder returns the embedding provider, which defaults to LLMProvider.
func (c Config) Embedder() string {
	if c.EmbedProvider != "" {
		return c.EmbedProvider
	}
	return c.LLMProvider
}

// Validate rejects settings no component can work with. Missing API keys
// are left to the provider constructors.
func (c Config) Validate() error {
	var errs []error
	if !validProvider(c.LLMProvider) {
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q: want openai, gemini or ollama", c.LLMProvider))
	}
	if !validProvider(c.Embedder()) {
		errs = append(errs, fmt.Errorf("EMBED_PROVIDER %q: want openai, gemini or ollama", c.Embedder()))
	}
	if c.VectorBackend != BackendQdrant && c.VectorBackend != BackendMemory {
		errs = append(errs, fmt.Errorf("VECTOR_BACKEND %q: want qdrant or memory", c.VectorBackend))
	}
	if c.VectorDims <= 0 {
		errs = append(errs, fmt.Errorf("VECTOR_DIMS must be positive, got %d", c.VectorDims))
	}
	if c.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CHARS must be positive, got %d", c.MaxChars))
	}
	if c.LineGap < 0 {
		errs = append(errs, fmt.Errorf("LINE_GAP must not be negative, got %v", c.LineGap))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func validProvider(p string) bool {
	return p == ProviderOpenAI || p == ProviderGemini || p == ProviderOllama
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
