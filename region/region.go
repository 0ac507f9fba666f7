// Package region implements sets of integer rectangles, as used for
// damage, input and opaque regions.
//
// A Region is stored in banded form: it is split horizontally at every
// distinct top or bottom edge, each band holds sorted non-touching
// spans, and vertically adjacent bands with identical spans are
// merged. The form is unique for a given set of pixels, so two regions
// cover the same pixels exactly when their rectangles are equal.
package region

import (
	"cmp"
	"fmt"
	"image"
	"math"
	"strings"

	"deedles.dev/wlcommit/internal/xslices"
	"golang.org/x/exp/slices"
)

// InfiniteRect is the rectangle used to represent an unbounded
// region. It is small enough that translating it never overflows.
var InfiniteRect = image.Rect(math.MinInt32/2, math.MinInt32/2, math.MaxInt32/2, math.MaxInt32/2)

// Region is an immutable set of pixels. The zero Region is empty.
type Region struct {
	rects []image.Rectangle
}

// New returns the union of rects.
func New(rects ...image.Rectangle) Region {
	return build(rects, nil, union)
}

// Rect returns a region covering exactly r.
func Rect(r image.Rectangle) Region {
	if r.Empty() {
		return Region{}
	}
	return Region{rects: []image.Rectangle{r.Canon()}}
}

// Infinite returns a region covering every representable point.
func Infinite() Region {
	return Rect(InfiniteRect)
}

func (r Region) IsEmpty() bool {
	return len(r.rects) == 0
}

// IsInfinite reports whether r covers InfiniteRect.
func (r Region) IsInfinite() bool {
	return (len(r.rects) == 1) && (r.rects[0] == InfiniteRect)
}

// Rects returns the rectangles making up r in banded order.
func (r Region) Rects() []image.Rectangle {
	return slices.Clone(r.rects)
}

// Bounds returns the smallest rectangle containing r.
func (r Region) Bounds() image.Rectangle {
	var b image.Rectangle
	for _, rect := range r.rects {
		b = b.Union(rect)
	}
	return b
}

func (r Region) Equal(other Region) bool {
	return slices.Equal(r.rects, other.rects)
}

func (r Region) Contains(p image.Point) bool {
	for _, rect := range r.rects {
		if p.In(rect) {
			return true
		}
	}
	return false
}

func (r Region) Union(other Region) Region {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}
	return build(r.rects, other.rects, union)
}

func (r Region) UnionRect(rect image.Rectangle) Region {
	return r.Union(Rect(rect))
}

func (r Region) Intersect(other Region) Region {
	if r.IsEmpty() || other.IsEmpty() {
		return Region{}
	}
	return build(r.rects, other.rects, intersect)
}

func (r Region) IntersectRect(rect image.Rectangle) Region {
	return r.Intersect(Rect(rect))
}

func (r Region) Subtract(other Region) Region {
	if r.IsEmpty() || other.IsEmpty() {
		return r
	}
	return build(r.rects, other.rects, subtract)
}

func (r Region) SubtractRect(rect image.Rectangle) Region {
	return r.Subtract(Rect(rect))
}

// Translate moves every rectangle in r by p.
func (r Region) Translate(p image.Point) Region {
	if r.IsEmpty() || (p == image.Point{}) {
		return r
	}

	rects := make([]image.Rectangle, len(r.rects))
	for i, rect := range r.rects {
		rects[i] = rect.Add(p)
	}
	return Region{rects: rects}
}

// Map applies f to each rectangle of r and returns the union of the
// results. It is used for transforms that don't preserve banding.
func (r Region) Map(f func(image.Rectangle) image.Rectangle) Region {
	rects := make([]image.Rectangle, 0, len(r.rects))
	for _, rect := range r.rects {
		rects = append(rects, f(rect))
	}
	return New(rects...)
}

func (r Region) String() string {
	if r.IsInfinite() {
		return "Region(infinite)"
	}

	var sb strings.Builder
	sb.WriteString("Region(")
	for i, rect := range r.rects {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(rect.String())
	}
	sb.WriteString(")")
	return sb.String()
}

type op func(inA, inB bool) bool

func union(inA, inB bool) bool     { return inA || inB }
func intersect(inA, inB bool) bool { return inA && inB }
func subtract(inA, inB bool) bool  { return inA && !inB }

type span struct {
	x0, x1 int
}

func build(a, b []image.Rectangle, op op) Region {
	a = xslices.Filter(a, func(r image.Rectangle) bool { return !r.Empty() })
	b = xslices.Filter(b, func(r image.Rectangle) bool { return !r.Empty() })

	ys := make([]int, 0, 2*(len(a)+len(b)))
	for _, r := range a {
		ys = append(ys, r.Min.Y, r.Max.Y)
	}
	for _, r := range b {
		ys = append(ys, r.Min.Y, r.Max.Y)
	}
	slices.Sort(ys)
	ys = slices.Compact(ys)

	var out []image.Rectangle
	var prev []span
	var prevY1 int
	for i := 0; i+1 < len(ys); i++ {
		y0, y1 := ys[i], ys[i+1]
		spans := combine(spansAt(a, y0, y1), spansAt(b, y0, y1), op)
		if len(spans) == 0 {
			prev = nil
			continue
		}

		if (prev != nil) && (prevY1 == y0) && slices.Equal(prev, spans) {
			for j := len(out) - len(spans); j < len(out); j++ {
				out[j].Max.Y = y1
			}
		} else {
			for _, s := range spans {
				out = append(out, image.Rect(s.x0, y0, s.x1, y1))
			}
		}
		prev, prevY1 = spans, y1
	}

	return Region{rects: out}
}

// spansAt returns the merged horizontal spans of the rectangles that
// cover the band [y0, y1). Since bands are split at every edge, a
// rectangle either covers the whole band or none of it.
func spansAt(rects []image.Rectangle, y0, y1 int) []span {
	var spans []span
	for _, r := range rects {
		if (r.Min.Y <= y0) && (r.Max.Y >= y1) {
			spans = append(spans, span{r.Min.X, r.Max.X})
		}
	}
	if len(spans) < 2 {
		return spans
	}

	slices.SortFunc(spans, func(s1, s2 span) int { return cmp.Compare(s1.x0, s2.x0) })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.x0 <= last.x1 {
			last.x1 = max(last.x1, s.x1)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func combine(a, b []span, op op) []span {
	xs := make([]int, 0, 2*(len(a)+len(b)))
	for _, s := range a {
		xs = append(xs, s.x0, s.x1)
	}
	for _, s := range b {
		xs = append(xs, s.x0, s.x1)
	}
	slices.Sort(xs)
	xs = slices.Compact(xs)

	var out []span
	for i := 0; i+1 < len(xs); i++ {
		x0, x1 := xs[i], xs[i+1]
		if !op(covers(a, x0), covers(b, x0)) {
			continue
		}
		if (len(out) > 0) && (out[len(out)-1].x1 == x0) {
			out[len(out)-1].x1 = x1
			continue
		}
		out = append(out, span{x0, x1})
	}
	return out
}

func covers(spans []span, x int) bool {
	for _, s := range spans {
		if (s.x0 <= x) && (x < s.x1) {
			return true
		}
	}
	return false
}

// GoString is used by test failure output.
func (r Region) GoString() string {
	return fmt.Sprintf("region.New(%v)", r.rects)
}
