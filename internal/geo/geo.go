// Package geo provides the point-based geometry shared by the tiling core,
// the AX transport, and the host adapters. All values are device-independent
// points (float64), matching what the Accessibility API reports.
package geo

import "math"

// Point is a location in points.
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned rectangle. W and H are never negative in practice;
// helpers do not normalize.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// X2 returns the right edge.
func (r Rect) X2() float64 { return r.X + r.W }

// Y2 returns the bottom edge.
func (r Rect) Y2() float64 { return r.Y + r.H }

// MidX returns the horizontal center.
func (r Rect) MidX() float64 { return r.X + r.W/2 }

// MidY returns the vertical center.
func (r Rect) MidY() float64 { return r.Y + r.H/2 }

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Contains reports whether p lies inside r (right/bottom edges exclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X2() && p.Y >= r.Y && p.Y < r.Y2()
}

// Eq reports exact equality of all four fields.
func (r Rect) Eq(o Rect) bool {
	return r.X == o.X && r.Y == o.Y && r.W == o.W && r.H == o.H
}

// Approx reports equality within eps per field. AX round-trips can disagree
// by sub-point amounts on scaled displays.
func (r Rect) Approx(o Rect, eps float64) bool {
	return math.Abs(r.X-o.X) <= eps &&
		math.Abs(r.Y-o.Y) <= eps &&
		math.Abs(r.W-o.W) <= eps &&
		math.Abs(r.H-o.H) <= eps
}

// Insets are per-side reductions applied to a rect.
type Insets struct {
	Top    float64
	Bottom float64
	Left   float64
	Right  float64
}

// Inset shrinks r by in on each side. Width and height are floored at zero.
func (r Rect) Inset(in Insets) Rect {
	out := Rect{
		X: r.X + in.Left,
		Y: r.Y + in.Top,
		W: r.W - in.Left - in.Right,
		H: r.H - in.Top - in.Bottom,
	}
	if out.W < 0 {
		out.W = 0
	}
	if out.H < 0 {
		out.H = 0
	}
	return out
}

// ClampSize shrinks r's width and height to fit within max, keeping origin.
func (r Rect) ClampSize(max Rect) Rect {
	if r.W > max.W {
		r.W = max.W
	}
	if r.H > max.H {
		r.H = max.H
	}
	return r
}

// Overlap1D returns the length of the overlap of [a1,a2) and [b1,b2), or 0.
func Overlap1D(a1, a2, b1, b2 float64) float64 {
	lo := math.Max(a1, b1)
	hi := math.Min(a2, b2)
	if hi <= lo {
		return 0
	}
	return hi - lo
}
