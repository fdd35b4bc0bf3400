package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/engine/layout"
	"github.com/aitutor/pdf-tutor/pkg/fn"
)

type fakePage struct {
	glyphs   []layout.Glyph
	glyphErr error
	ops      []layout.Op
	opsErr   error
	images   map[string]*layout.Image
	forms    map[string]bool
}

func (p fakePage) Glyphs() ([]layout.Glyph, error) { return p.glyphs, p.glyphErr }
func (p fakePage) Ops() ([]layout.Op, error)       { return p.ops, p.opsErr }
func (p fakePage) Pools() []layout.Pool {
	return []layout.Pool{layout.PoolFunc(func(_ context.Context, name string) (*layout.Image, error) {
		if p.forms[name] {
			return nil, layout.ErrNotImage
		}
		return p.images[name], nil
	})}
}

type fakeDescriber map[string]string

func (f fakeDescriber) Describe(_ context.Context, data []byte, _, _ int) fn.Result[string] {
	if d, ok := f[string(data)]; ok {
		return fn.Ok(d)
	}
	return fn.Err[string](errors.New("model refused"))
}

func word(s string, x, y float64) []layout.Glyph {
	var out []layout.Glyph
	for _, r := range s {
		out = append(out, layout.Glyph{Font: "F1", Size: 10, X: x, Y: y, W: 5, S: string(r)})
		x += 5
	}
	return out
}

func place(name string, e, f float64) []layout.Op {
	return []layout.Op{
		{Kind: layout.OpSave},
		{Kind: layout.OpTransform, Matrix: layout.Matrix{10, 0, 0, 10, e, f}},
		{Kind: layout.OpPaintXObject, Name: name},
		{Kind: layout.OpRestore},
	}
}

func TestAssembler_TextThenImages(t *testing.T) {
	var ops []layout.Op
	ops = append(ops, place("Good", 1, 2)...)
	ops = append(ops, place("Form", 3, 4)...)
	ops = append(ops, place("Broken", 5, 6)...)
	ops = append(ops, place("Missing", 7, 8)...)
	ops = append(ops, layout.Op{Kind: layout.OpPaintInline})

	page := fakePage{
		glyphs: word("hello", 10, 700),
		ops:    ops,
		images: map[string]*layout.Image{
			"Good":   {Data: []byte("good-bytes"), Width: 1, Height: 1},
			"Broken": {Data: []byte("broken-bytes"), Width: 1, Height: 1},
		},
		forms: map[string]bool{"Form": true},
	}
	a := &Assembler{Describer: fakeDescriber{"good-bytes": "a chart"}, ImageTimeout: time.Second, Workers: 2}

	units, err := a.Page(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	// hello, Good, Broken, Missing, inline. Form is dropped.
	if len(units) != 5 {
		t.Fatalf("got %d units: %+v", len(units), units)
	}
	if units[0].Type != domain.UnitText || units[0].Text != "hello" {
		t.Errorf("unit 0 = %+v", units[0])
	}
	if units[1].Text != "a chart" || units[1].Degraded != "" || units[1].Box.X != 1 {
		t.Errorf("good image = %+v", units[1])
	}
	if units[2].Text != "" || !strings.Contains(units[2].Degraded, "model refused") {
		t.Errorf("broken image = %+v", units[2])
	}
	if units[3].Text != "" || !strings.Contains(units[3].Degraded, "Missing") {
		t.Errorf("missing image = %+v", units[3])
	}
	if units[4].Degraded != ErrInlineImage.Error() {
		t.Errorf("inline image = %+v", units[4])
	}
	for _, u := range units[1:] {
		if u.Type != domain.UnitImage {
			t.Errorf("unit %+v should be an image", u)
		}
	}
}

func TestAssembler_GlyphErrorIsFatal(t *testing.T) {
	a := &Assembler{}
	if _, err := a.Page(context.Background(), fakePage{glyphErr: errors.New("bad font")}, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestAssembler_PartialOps(t *testing.T) {
	page := fakePage{
		ops:    place("Good", 1, 2),
		opsErr: errors.New("second stream broken"),
		images: map[string]*layout.Image{"Good": {Data: []byte("good-bytes")}},
	}
	a := &Assembler{Describer: fakeDescriber{"good-bytes": "ok"}}
	units, err := a.Page(context.Background(), page, 3)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(units) != 1 || units[0].Text != "ok" {
		t.Fatalf("units = %+v", units)
	}
}

func TestAssembler_NoDescriber(t *testing.T) {
	page := fakePage{
		ops:    place("Good", 1, 2),
		images: map[string]*layout.Image{"Good": {Data: []byte("good-bytes")}},
	}
	units, err := (&Assembler{}).Page(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(units) != 1 || units[0].Degraded == "" {
		t.Fatalf("units = %+v", units)
	}
}
