// Package layout reconstructs where things sit on a PDF page: it folds a
// page's drawing operators into image placements, groups glyphs into
// positioned text fragments, and chunks those fragments into line-aware
// passages with merged bounding boxes.
package layout

import (
	"math"

	"github.com/aitutor/pdf-tutor/engine/domain"
)

// Matrix is a 3x2 affine transform [a b c d e f] in PDF operand order.
type Matrix [6]float64

// Identity is the unit transform.
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Concat composes n onto m: n is applied in m's space, the way a cm
// operator updates the current transform.
func (m Matrix) Concat(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[2]*n[1],
		m[1]*n[0] + m[3]*n[1],
		m[0]*n[2] + m[2]*n[3],
		m[1]*n[2] + m[3]*n[3],
		m[0]*n[4] + m[2]*n[5] + m[4],
		m[1]*n[4] + m[3]*n[5] + m[5],
	}
}

// Box maps the unit square through m and returns its axis-aligned placement.
// Rotation and skew are folded into the scale magnitudes.
func (m Matrix) Box() domain.BoundingBox {
	a, b, c, d, e, f := m[0], m[1], m[2], m[3], m[4], m[5]
	return domain.BoundingBox{
		X:      e,
		Y:      f,
		Width:  math.Sqrt(a*a + c*c),
		Height: math.Sqrt(b*b + d*d),
	}
}
