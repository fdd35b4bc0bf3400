// Package embed is the embedding service: it validates input, calls the
// configured provider and checks the vector against the index dimension.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/pkg/fn"
	"github.com/aitutor/pdf-tutor/pkg/llm"
)

// ErrDimension is returned when a provider's vector length does not match.
var ErrDimension = errors.New("embed: dimension mismatch")

// Service embeds text with a fixed-dimension model.
type Service struct {
	provider llm.Embedder
	dims     int
}

// New creates a Service. dims <= 0 skips the dimension check.
func New(provider llm.Embedder, dims int) *Service {
	return &Service{provider: provider, dims: dims}
}

// Dims returns the expected vector length.
func (s *Service) Dims() int { return s.dims }

// Embed returns the vector for text. Blank input is rejected before any
// provider call.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("github.com/aitutor/pdf-tutor/engine/embed").Start(ctx, "embed.text")
	defer span.End()
	span.SetAttributes(attribute.Int("embed.text_length", len(text)))

	vec, err := s.embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return vec, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embed: %w", domain.ErrEmptyText)
	}
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embed: %w", llm.ErrEmptyResponse)
	}
	if s.dims > 0 && len(vec) != s.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), s.dims)
	}
	return vec, nil
}

// Stage exposes Embed as a pipeline stage.
func (s *Service) Stage() fn.Stage[string, []float32] {
	return func(ctx context.Context, text string) fn.Result[[]float32] {
		return fn.FromPair(s.Embed(ctx, text))
	}
}
