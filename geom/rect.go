package geom

import (
	"fmt"
	"image"
	"math"
)

type PointF struct {
	X, Y float64
}

func PtF(p image.Point) PointF {
	return PointF{X: float64(p.X), Y: float64(p.Y)}
}

func (p PointF) Add(q PointF) PointF {
	return PointF{X: p.X + q.X, Y: p.Y + q.Y}
}

func (p PointF) Sub(q PointF) PointF {
	return PointF{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p PointF) Div(v float64) PointF {
	return PointF{X: p.X / v, Y: p.Y / v}
}

// Floor returns the integer point containing p.
func (p PointF) Floor() image.Point {
	return image.Pt(int(math.Floor(p.X)), int(math.Floor(p.Y)))
}

// RectF is a rectangle with fractional coordinates. A RectF with a
// non-positive width or height is invalid, which is how an unset
// viewport source is represented.
type RectF struct {
	X, Y, W, H float64
}

func RectFOf(r image.Rectangle) RectF {
	return RectF{
		X: float64(r.Min.X),
		Y: float64(r.Min.Y),
		W: float64(r.Dx()),
		H: float64(r.Dy()),
	}
}

func (r RectF) Valid() bool {
	return (r.W > 0) && (r.H > 0)
}

// Union returns the smallest rectangle containing both r and other.
// Invalid rectangles are ignored.
func (r RectF) Union(other RectF) RectF {
	if !other.Valid() {
		return r
	}
	if !r.Valid() {
		return other
	}

	x0 := math.Min(r.X, other.X)
	y0 := math.Min(r.Y, other.Y)
	x1 := math.Max(r.X+r.W, other.X+other.W)
	y1 := math.Max(r.Y+r.H, other.Y+other.H)
	return RectF{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func (r RectF) Min() PointF {
	return PointF{X: r.X, Y: r.Y}
}

func (r RectF) Size() PointF {
	return PointF{X: r.W, Y: r.H}
}

// Scale multiplies both the position and size of r.
func (r RectF) Scale(sx, sy float64) RectF {
	return RectF{X: r.X * sx, Y: r.Y * sy, W: r.W * sx, H: r.H * sy}
}

func (r RectF) Translate(p PointF) RectF {
	return RectF{X: r.X + p.X, Y: r.Y + p.Y, W: r.W, H: r.H}
}

// Aligned returns the smallest integer rectangle containing r.
func (r RectF) Aligned() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)),
		int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.W)),
		int(math.Ceil(r.Y+r.H)),
	)
}

func (r RectF) String() string {
	return fmt.Sprintf("(%v,%v %vx%v)", r.X, r.Y, r.W, r.H)
}
