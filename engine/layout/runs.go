package layout

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Glyph is one positioned character as decoded from a page's text objects.
// X, Y locate the baseline origin; W is the advance width.
type Glyph struct {
	Font string
	Size float64
	X    float64
	Y    float64
	W    float64
	S    string
}

// Fragment is a run of text drawn with a single baseline transform.
type Fragment struct {
	Transform Matrix
	Width     float64
	Text      string
}

const (
	// baselineTolerance is how far two glyphs' baselines may drift and
	// still be on the same run.
	baselineTolerance = 0.5
	// spaceRatio is the gap, as a fraction of font size, read as a word break.
	spaceRatio = 0.2
	// runBreakRatio is the gap, as a fraction of font size, that ends a run.
	runBreakRatio = 1.5
)

// GroupGlyphs joins consecutive glyphs sharing a font, size and baseline into
// fragments, inserting a space where the horizontal gap reads as a word
// break. A fragment that starts on the same baseline as its predecessor
// after a gap is prefixed with a space so that chunked text keeps words apart.
func GroupGlyphs(glyphs []Glyph) []Fragment {
	var (
		out  []Fragment
		cur  *Fragment
		last Glyph
		sb   strings.Builder
	)
	finish := func() {
		if cur != nil {
			cur.Text = sb.String()
			out = append(out, *cur)
			cur = nil
			sb.Reset()
		}
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if cur != nil && continuesRun(last, g) {
			if gap := g.X - (last.X + last.W); gap > spaceRatio*g.Size && !endsInSpace(sb.String()) && !startsWithSpace(g.S) {
				sb.WriteByte(' ')
			}
			sb.WriteString(g.S)
			cur.Width = g.X + g.W - cur.Transform[4]
			last = g
			continue
		}

		leadingSpace := cur != nil && sameBaseline(last, g) && g.X-(last.X+last.W) > spaceRatio*g.Size &&
			!endsInSpace(sb.String()) && !startsWithSpace(g.S)
		finish()
		cur = &Fragment{
			Transform: Matrix{g.Size, 0, 0, g.Size, g.X, g.Y},
			Width:     g.W,
		}
		if leadingSpace {
			sb.WriteByte(' ')
		}
		sb.WriteString(g.S)
		last = g
	}
	finish()
	return out
}

func sameBaseline(a, b Glyph) bool {
	return math.Abs(a.Y-b.Y) <= baselineTolerance
}

func continuesRun(prev, g Glyph) bool {
	if prev.Font != g.Font || prev.Size != g.Size || !sameBaseline(prev, g) {
		return false
	}
	gap := g.X - (prev.X + prev.W)
	size := math.Max(g.Size, 1)
	return gap >= -size && gap <= runBreakRatio*size
}

func endsInSpace(s string) bool {
	r, n := utf8.DecodeLastRuneInString(s)
	return n > 0 && unicode.IsSpace(r)
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}
