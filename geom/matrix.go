package geom

import (
	"errors"
	"math"
)

// Matrix is a 2x3 affine transform in the order [a b c d e f], mapping
// (x, y) to (a*x+c*y+e, b*x+d*y+f).
type Matrix [6]float64

// Identity returns the identity transform.
func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Scaling returns the uniform zoom transform used for document-to-output
// mapping.
func Scaling(zoom float64) Matrix { return Matrix{zoom, 0, 0, zoom, 0, 0} }

// ScalingXY returns a non-uniform scale.
func ScalingXY(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Translation returns a pure offset transform.
func Translation(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

// Mul composes the transforms so that m applies first, then o.
func (m Matrix) Mul(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Apply transforms a point.
func (m Matrix) Apply(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// ApplyRect transforms a rect and re-normalizes the corners, so flips and
// rotations still yield a top-left anchored result.
func (m Matrix) ApplyRect(r Rect) Rect {
	p0 := m.Apply(Point{X: r.X, Y: r.Y})
	p1 := m.Apply(Point{X: r.MaxX(), Y: r.MaxY()})
	return RectFromCorners(p0.X, p0.Y, p1.X, p1.Y)
}

// Inverse returns the inverse transform, or an error when the matrix is
// singular.
func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}
