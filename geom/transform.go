// Package geom holds the geometry types shared by the surface state
// machine: buffer transforms and fractional rectangles.
package geom

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/math/f64"
)

// Transform is one of the eight wl_output.transform values. Rotations
// are counter-clockwise and flipping happens around the vertical axis
// before rotating.
type Transform uint32

const (
	Normal Transform = iota
	Rotate90
	Rotate180
	Rotate270
	Flipped
	Flipped90
	Flipped180
	Flipped270
)

var transformNames = [...]string{
	Normal:     "normal",
	Rotate90:   "90",
	Rotate180:  "180",
	Rotate270:  "270",
	Flipped:    "flipped",
	Flipped90:  "flipped-90",
	Flipped180: "flipped-180",
	Flipped270: "flipped-270",
}

func (t Transform) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Transform(%d)", uint32(t))
	}
	return transformNames[t]
}

func (t Transform) Valid() bool {
	return t <= Flipped270
}

// SwapsAxes reports whether t exchanges width and height.
func (t Transform) SwapsAxes() bool {
	return (t == Rotate90) || (t == Rotate270) || (t == Flipped90) || (t == Flipped270)
}

// Inverted returns the transform that undoes t.
func (t Transform) Inverted() Transform {
	switch t {
	case Rotate90:
		return Rotate270
	case Rotate270:
		return Rotate90
	default:
		return t
	}
}

// Matrix returns the affine matrix mapping a point inside a box of the
// given size into the transformed box.
func (t Transform) Matrix(bounds PointF) f64.Aff3 {
	w, h := bounds.X, bounds.Y
	switch t {
	case Rotate90:
		return f64.Aff3{0, 1, 0, -1, 0, w}
	case Rotate180:
		return f64.Aff3{-1, 0, w, 0, -1, h}
	case Rotate270:
		return f64.Aff3{0, -1, h, 1, 0, 0}
	case Flipped:
		return f64.Aff3{-1, 0, w, 0, 1, 0}
	case Flipped90:
		return f64.Aff3{0, 1, 0, 1, 0, 0}
	case Flipped180:
		return f64.Aff3{1, 0, 0, 0, -1, h}
	case Flipped270:
		return f64.Aff3{0, -1, h, -1, 0, w}
	default:
		return f64.Aff3{1, 0, 0, 0, 1, 0}
	}
}

func apply(m f64.Aff3, p PointF) PointF {
	return PointF{
		X: m[0]*p.X + m[1]*p.Y + m[2],
		Y: m[3]*p.X + m[4]*p.Y + m[5],
	}
}

// MapPoint maps p, which lies in a box of the given size.
func (t Transform) MapPoint(p, bounds PointF) PointF {
	return apply(t.Matrix(bounds), p)
}

// MapSize returns the size of a box of size s after transforming it.
func (t Transform) MapSize(s image.Point) image.Point {
	if t.SwapsAxes() {
		return image.Pt(s.Y, s.X)
	}
	return s
}

func (t Transform) MapSizeF(s PointF) PointF {
	if t.SwapsAxes() {
		return PointF{X: s.Y, Y: s.X}
	}
	return s
}

// MapRect maps r, which lies in a box of the given size.
func (t Transform) MapRect(r RectF, bounds PointF) RectF {
	m := t.Matrix(bounds)
	p1 := apply(m, PointF{X: r.X, Y: r.Y})
	p2 := apply(m, PointF{X: r.X + r.W, Y: r.Y + r.H})
	return RectF{
		X: math.Min(p1.X, p2.X),
		Y: math.Min(p1.Y, p2.Y),
		W: math.Abs(p2.X - p1.X),
		H: math.Abs(p2.Y - p1.Y),
	}
}
