package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/engine/layout"
	"github.com/aitutor/pdf-tutor/pkg/fn"
	"github.com/aitutor/pdf-tutor/pkg/metrics"
)

// ErrInlineImage marks image units whose bytes are not kept by the decoder.
var ErrInlineImage = errors.New("ingest: inline image data unavailable")

// Page is one decoded page.
type Page interface {
	Glyphs() ([]layout.Glyph, error)
	Ops() ([]layout.Op, error)
	Pools() []layout.Pool
}

// Describer turns image bytes into text.
type Describer interface {
	Describe(ctx context.Context, data []byte, width, height int) fn.Result[string]
}

// PageUnit is a unit before it is numbered within the document.
type PageUnit struct {
	Type     domain.UnitType
	Text     string
	Box      domain.BoundingBox
	Degraded string
}

// Assembler turns one page into its text units followed by its image units.
type Assembler struct {
	Lines        layout.LineOptions
	ImageTimeout time.Duration
	Describer    Describer
	// Workers bounds concurrent image lookups and descriptions per page.
	Workers int
	Metrics *metrics.Pipeline
	Logger  *slog.Logger
}

// Page returns the page's units: every text chunk, then every image.
func (a *Assembler) Page(ctx context.Context, p Page, number int) ([]PageUnit, error) {
	log := a.logger().With("page", number)

	glyphs, err := p.Glyphs()
	if err != nil {
		return nil, err
	}
	var units []PageUnit
	for _, c := range layout.ChunkLines(layout.GroupGlyphs(glyphs), a.Lines) {
		units = append(units, PageUnit{Type: domain.UnitText, Text: c.Text, Box: c.Box})
	}

	ops, err := p.Ops()
	if err != nil {
		// Operators decoded before the failure still place images.
		log.Warn("page content partially decoded", "error", err, "ops", len(ops))
	}
	placements := layout.ExtractPlacements(ops)
	if len(placements) == 0 {
		return units, nil
	}

	resolver := layout.NewResolver(a.ImageTimeout, p.Pools()...)
	images := fn.ParMap(placements, a.Workers, func(pl layout.Placement) *PageUnit {
		return a.image(ctx, log, resolver, pl)
	})
	for _, u := range images {
		if u != nil {
			units = append(units, *u)
		}
	}
	return units, nil
}

// image builds the unit for one placement. Placements that name something
// other than an image are dropped (nil).
func (a *Assembler) image(ctx context.Context, log *slog.Logger, resolver *layout.Resolver, pl layout.Placement) *PageUnit {
	u := &PageUnit{Type: domain.UnitImage, Box: pl.Box}
	if pl.Inline {
		u.Degraded = ErrInlineImage.Error()
		a.Metrics.Degraded("resolve")
		return u
	}

	img := resolver.Resolve(ctx, pl.Name)
	if img.IsErr() {
		if errors.Is(img.Reason(), layout.ErrNotImage) {
			return nil
		}
		log.Warn("image unresolved", "name", pl.Name, "reason", img.Reason())
		u.Degraded = img.Reason().Error()
		a.Metrics.Degraded("resolve")
		return u
	}

	data := img.Must()
	if a.Describer == nil {
		u.Degraded = "vision: no describer configured"
		a.Metrics.Degraded("vision")
		return u
	}
	desc := a.Describer.Describe(ctx, data.Data, data.Width, data.Height)
	if desc.IsErr() {
		u.Degraded = fmt.Sprintf("%s: %v", pl.Name, desc.Reason())
		a.Metrics.Degraded("vision")
		return u
	}
	u.Text = desc.Must()
	return u
}

func (a *Assembler) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
