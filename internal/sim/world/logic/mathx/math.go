// Package mathx holds the float helpers shared by the simulation stages.
//
// Every product is wrapped in an explicit float64 conversion before it is
// added to anything. Go permits x*y+z to be fused into a single FMA
// instruction on some architectures, and peers running the same tick on
// different hardware must round identically.
package mathx

import "math"

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func V(x, y float64) Vec2 { return Vec2{X: x, Y: y} }

func (a Vec2) Add(b Vec2) Vec2 { return Vec2{X: a.X + b.X, Y: a.Y + b.Y} }

func (a Vec2) Sub(b Vec2) Vec2 { return Vec2{X: a.X - b.X, Y: a.Y - b.Y} }

func (a Vec2) Scale(k float64) Vec2 { return Vec2{X: float64(a.X * k), Y: float64(a.Y * k)} }

func (a Vec2) LenSq() float64 { return float64(a.X*a.X) + float64(a.Y*a.Y) }

func (a Vec2) Len() float64 { return math.Sqrt(a.LenSq()) }

func Dist(a, b Vec2) float64 { return b.Sub(a).Len() }

func DistSq(a, b Vec2) float64 { return b.Sub(a).LenSq() }

// StepToward moves from toward to by at most maxStep and never past to.
// It returns the new position and the distance that remained before the step.
func StepToward(from, to Vec2, maxStep float64) (Vec2, float64) {
	d := to.Sub(from)
	dist := d.Len()
	if dist == 0 || maxStep <= 0 {
		return from, dist
	}
	if maxStep >= dist {
		return to, dist
	}
	return from.Add(d.Scale(maxStep / dist)), dist
}

// Lerp returns a + (b-a)*t.
func Lerp(a, b Vec2, t float64) Vec2 { return a.Add(b.Sub(a).Scale(t)) }

func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Rect is an axis-aligned box with Min inclusive and Max exclusive.
type Rect struct {
	Min Vec2
	Max Vec2
}

func Square(topLeft Vec2, size float64) Rect {
	return Rect{Min: topLeft, Max: Vec2{X: topLeft.X + size, Y: topLeft.Y + size}}
}

func (r Rect) Center() Vec2 {
	return Vec2{X: float64((r.Min.X + r.Max.X) * 0.5), Y: float64((r.Min.Y + r.Max.Y) * 0.5)}
}

// ContainsOpen reports whether p lies strictly inside r.
func (r Rect) ContainsOpen(p Vec2) bool {
	return p.X > r.Min.X && p.X < r.Max.X && p.Y > r.Min.Y && p.Y < r.Max.Y
}

// ContainsClosed reports whether p lies inside r or on its border.
func (r Rect) ContainsClosed(p Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Overlaps reports whether r, shrunk by margin on every side, overlaps o.
// A negative margin grows r instead.
func (r Rect) Overlaps(o Rect, margin float64) bool {
	return r.Min.X+margin < o.Max.X && r.Max.X-margin > o.Min.X &&
		r.Min.Y+margin < o.Max.Y && r.Max.Y-margin > o.Min.Y
}
