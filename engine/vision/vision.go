// Package vision turns image regions into searchable text by asking a
// vision-capable model to describe them.
package vision

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aitutor/pdf-tutor/pkg/fn"
	"github.com/aitutor/pdf-tutor/pkg/llm"
)

// Instruction is sent with every image.
const Instruction = "Describe this image in detail for document analysis. " +
	"Include any readable text, diagrams, charts, tables or other important visual elements, " +
	"with enough detail that questions about the document can be answered from your description alone."

// DefaultMinBytes is the size below which an image is treated as decoration.
const DefaultMinBytes = 100

// ErrEmptyDescription is returned when the model answers with nothing.
var ErrEmptyDescription = errors.New("vision: empty description")

// Describer describes images with a vision model.
type Describer struct {
	model    llm.Describer
	minBytes int
	logger   *slog.Logger
}

// Option configures a Describer.
type Option func(*Describer)

// WithMinBytes overrides DefaultMinBytes.
func WithMinBytes(n int) Option { return func(d *Describer) { d.minBytes = n } }

// WithLogger sets the logger for degraded results.
func WithLogger(l *slog.Logger) Option { return func(d *Describer) { d.logger = l } }

// New creates a Describer.
func New(model llm.Describer, opts ...Option) *Describer {
	d := &Describer{model: model, minBytes: DefaultMinBytes, logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Describe returns the model's description of the image, or the reason none
// was produced. It never fails the caller: every failure is a degraded
// result, and the owning unit keeps its placement with empty text.
func (d *Describer) Describe(ctx context.Context, data []byte, width, height int) fn.Result[string] {
	r := d.describe(ctx, data, width, height)
	if r.IsErr() {
		d.logger.Warn("image description degraded",
			"bytes", len(data), "width", width, "height", height, "reason", r.Reason())
	}
	return r
}

func (d *Describer) describe(ctx context.Context, data []byte, width, height int) fn.Result[string] {
	if len(data) < d.minBytes {
		return fn.Err[string](ErrTooSmall)
	}
	encoded, mime, err := Normalize(data, width, height)
	if err != nil {
		return fn.Err[string](err)
	}
	text, err := d.model.Describe(ctx, llm.Image{MIME: mime, Data: encoded}, Instruction)
	if err != nil {
		return fn.Errf[string]("vision: model: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fn.Err[string](ErrEmptyDescription)
	}
	return fn.Ok(text)
}
