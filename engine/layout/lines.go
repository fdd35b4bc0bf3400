package layout

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/aitutor/pdf-tutor/engine/domain"
)

// LineOptions tunes ChunkLines.
type LineOptions struct {
	// MaxChars is the buffer length that triggers a flush. It is checked
	// after a whole fragment is appended, so chunks may run over by up to
	// one fragment.
	MaxChars int
	// LineGap is the vertical jump, in page units, read as a new line.
	LineGap float64
}

// DefaultLineOptions returns MaxChars 500, LineGap 5.
func DefaultLineOptions() LineOptions {
	return LineOptions{MaxChars: 500, LineGap: 5}
}

// Chunk is a passage of text with the union of its fragments' boxes.
type Chunk struct {
	Text string
	Box  domain.BoundingBox
}

// FragmentBox places a fragment: origin at the baseline translation, width
// from the fragment advance, height from the transform's vertical scale.
func FragmentBox(f Fragment) domain.BoundingBox {
	t := f.Transform
	return domain.BoundingBox{
		X:      t[4],
		Y:      t[5],
		Width:  f.Width,
		Height: math.Sqrt(t[1]*t[1] + t[3]*t[3]),
	}
}

type lineChunker struct {
	opts   LineOptions
	buf    strings.Builder
	runes  int
	box    domain.BoundingBox
	hasBox bool
	lastY  float64
	seenY  bool
	chunks []Chunk
}

func (c *lineChunker) add(f Fragment) {
	fb := FragmentBox(f)
	if !c.hasBox {
		c.box, c.hasBox = fb, true
	} else {
		right := math.Max(c.box.X+c.box.Width, fb.X+fb.Width)
		top := math.Max(c.box.Y+c.box.Height, fb.Y+fb.Height)
		c.box.X = math.Min(c.box.X, fb.X)
		c.box.Y = math.Min(c.box.Y, fb.Y)
		c.box.Width = right - c.box.X
		c.box.Height = top - c.box.Y
	}

	y := f.Transform[5]
	if c.seenY && math.Abs(y-c.lastY) > c.opts.LineGap {
		c.buf.WriteByte('\n')
		c.runes++
	}
	c.lastY, c.seenY = y, true

	c.buf.WriteString(f.Text)
	c.runes += utf8.RuneCountInString(f.Text)

	if c.runes >= c.opts.MaxChars {
		c.flush()
	}
}

// flush emits the buffer as a chunk. A whitespace-only buffer is kept, not
// emitted, and carries over into the next chunk.
func (c *lineChunker) flush() {
	text := strings.TrimSpace(c.buf.String())
	if text == "" {
		return
	}
	c.chunks = append(c.chunks, Chunk{Text: text, Box: c.box})
	c.buf.Reset()
	c.runes = 0
	c.hasBox = false
}

// ChunkLines groups fragments into chunks. A newline is inserted whenever a
// fragment's baseline differs from the previous one by more than LineGap.
// Non-positive options fall back to the defaults.
func ChunkLines(frags []Fragment, opts LineOptions) []Chunk {
	def := DefaultLineOptions()
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxChars
	}
	if opts.LineGap <= 0 {
		opts.LineGap = def.LineGap
	}
	c := &lineChunker{opts: opts}
	for _, f := range frags {
		c.add(f)
	}
	c.flush()
	return c.chunks
}
