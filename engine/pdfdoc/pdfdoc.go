// Package pdfdoc decodes PDF bytes with github.com/ledongthuc/pdf and exposes
// what the layout pass needs per page: positioned glyphs, drawing operators
// and the resource pools image references resolve against.
package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/aitutor/pdf-tutor/engine/layout"
)

// ErrParse wraps every failure to read the document structure.
var ErrParse = errors.New("pdfdoc: parse failed")

// maxParentDepth bounds the walk up the page tree when looking for
// inherited resources.
const maxParentDepth = 32

// Document is a parsed PDF held in memory.
type Document struct {
	raw    []byte
	reader *pdf.Reader
}

// Open parses data. The parser panics on some malformed input; that is
// reported as ErrParse.
func Open(data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &Document{raw: data, reader: reader}, nil
}

// NumPages returns the page count.
func (d *Document) NumPages() int { return d.reader.NumPage() }

// Page returns page n (1-based).
func (d *Document) Page(n int) (page *Page, err error) {
	if n < 1 || n > d.NumPages() {
		return nil, fmt.Errorf("%w: page %d out of range 1..%d", ErrParse, n, d.NumPages())
	}
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, fmt.Errorf("%w: page %d: %v", ErrParse, n, r)
		}
	}()
	p := d.reader.Page(n)
	if p.V.IsNull() {
		return nil, fmt.Errorf("%w: page %d missing from page tree", ErrParse, n)
	}
	return &Page{doc: d, page: p, Number: n}, nil
}

// Page is one page of a Document.
type Page struct {
	doc    *Document
	page   pdf.Page
	Number int
}

// Glyphs returns the page's positioned characters in content order. Text the
// decoder cannot handle is reported as an error.
func (p *Page) Glyphs() (glyphs []layout.Glyph, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfdoc: page %d text: %v", p.Number, r)
		}
	}()
	for _, t := range p.page.Content().Text {
		glyphs = append(glyphs, layout.Glyph{
			Font: t.Font,
			Size: t.FontSize,
			X:    t.X,
			Y:    t.Y,
			W:    t.W,
			S:    t.S,
		})
	}
	return glyphs, nil
}

// Ops returns the drawing operators relevant to image placement, in stream
// order. Content split across several streams is read as one sequence. When a
// stream fails to decode, the operators of the streams before it are
// returned with the error.
func (p *Page) Ops() (ops []layout.Op, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfdoc: page %d content: %v", p.Number, r)
		}
	}()
	contents := p.page.V.Key("Contents")
	switch contents.Kind() {
	case pdf.Stream:
		ops = interpret(contents, ops)
	case pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			ops = interpret(contents.Index(i), ops)
		}
	}
	return ops, nil
}

func interpret(strm pdf.Value, ops []layout.Op) []layout.Op {
	inInline := false
	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		if inInline {
			// Inline image data is binary and lexes as noise until EI.
			if op == "EI" {
				inInline = false
			}
			return
		}
		switch op {
		case "q":
			ops = append(ops, layout.Op{Kind: layout.OpSave})
		case "Q":
			ops = append(ops, layout.Op{Kind: layout.OpRestore})
		case "cm":
			if len(args) != 6 {
				return
			}
			var m layout.Matrix
			for i := range m {
				m[i] = args[i].Float64()
			}
			ops = append(ops, layout.Op{Kind: layout.OpTransform, Matrix: m})
		case "Do":
			if len(args) != 1 {
				return
			}
			ops = append(ops, layout.Op{Kind: layout.OpPaintXObject, Name: args[0].Name()})
		case "BI":
			ops = append(ops, layout.Op{Kind: layout.OpPaintInline})
		case "ID":
			inInline = true
		}
	})
	return ops
}

// Pools returns the page-local and inherited XObject pools, in that order.
func (p *Page) Pools() []layout.Pool {
	return []layout.Pool{
		layout.PoolFunc(p.localImage),
		layout.PoolFunc(p.inheritedImage),
	}
}

func (p *Page) localImage(_ context.Context, name string) (*layout.Image, error) {
	return p.doc.image(p.page.V.Key("Resources").Key("XObject").Key(name))
}

func (p *Page) inheritedImage(ctx context.Context, name string) (*layout.Image, error) {
	node := p.page.V.Key("Parent")
	for depth := 0; depth < maxParentDepth && !node.IsNull(); depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := node.Key("Resources").Key("XObject").Key(name)
		if !x.IsNull() {
			return p.doc.image(x)
		}
		node = node.Key("Parent")
	}
	return nil, nil
}

// image decodes an image XObject. A missing object is (nil, nil).
func (d *Document) image(x pdf.Value) (img *layout.Image, err error) {
	if x.IsNull() {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("pdfdoc: decode image: %v", r)
		}
	}()
	if x.Key("Subtype").Name() != "Image" {
		return nil, layout.ErrNotImage
	}
	w, h := int(x.Key("Width").Int64()), int(x.Key("Height").Int64())

	filters := filterNames(x.Key("Filter"))
	if len(filters) == 1 && filters[0] == "DCTDecode" {
		data, err := findJPEG(d.raw, x.Key("Length").Int64(), w, h)
		if err != nil {
			return nil, err
		}
		return &layout.Image{Data: data, Width: w, Height: h}, nil
	}

	// The reader applies Flate/ASCII85 itself and panics on anything else.
	data, err := io.ReadAll(x.Reader())
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: read image stream: %w", err)
	}
	return &layout.Image{Data: data, Width: w, Height: h}, nil
}

func filterNames(v pdf.Value) []string {
	switch v.Kind() {
	case pdf.Name:
		return []string{v.Name()}
	case pdf.Array:
		names := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			names = append(names, v.Index(i).Name())
		}
		return names
	}
	return nil
}
