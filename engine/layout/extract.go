package layout

import "github.com/aitutor/pdf-tutor/engine/domain"

// OpKind identifies the drawing operators the extractor cares about.
type OpKind int

const (
	OpOther       OpKind = iota
	OpSave               // q
	OpRestore            // Q
	OpTransform          // cm
	OpPaintXObject       // Do
	OpPaintInline        // BI ... EI
)

// Op is one drawing operator from a page content stream.
type Op struct {
	Kind   OpKind
	Matrix Matrix // OpTransform operand
	Name   string // OpPaintXObject resource name
}

// Placement is an image paint with the transform in force when it ran.
type Placement struct {
	Name   string // empty for inline images
	Inline bool
	CTM    Matrix
	Box    domain.BoundingBox
}

// geometry is the fold accumulator. Values are never shared between steps.
type geometry struct {
	ctm    Matrix
	stack  []Matrix
	placed []Placement
}

func (g geometry) step(op Op) geometry {
	switch op.Kind {
	case OpSave:
		g.stack = append(g.stack[:len(g.stack):len(g.stack)], g.ctm)
	case OpRestore:
		if n := len(g.stack); n > 0 {
			g.ctm = g.stack[n-1]
			g.stack = g.stack[:n-1]
		} else {
			g.ctm = Identity
		}
	case OpTransform:
		g.ctm = g.ctm.Concat(op.Matrix)
	case OpPaintXObject, OpPaintInline:
		g.placed = append(g.placed[:len(g.placed):len(g.placed)], Placement{
			Name:   op.Name,
			Inline: op.Kind == OpPaintInline,
			CTM:    g.ctm,
			Box:    g.ctm.Box(),
		})
	}
	return g
}

// ExtractPlacements folds ops into one placement per image paint, in stream
// order. A restore with nothing saved falls back to the identity transform.
func ExtractPlacements(ops []Op) []Placement {
	g := geometry{ctm: Identity}
	for _, op := range ops {
		g = g.step(op)
	}
	return g.placed
}
