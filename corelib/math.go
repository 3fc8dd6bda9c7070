package corelib

import (
	"fmt"
	"math"

	"github.com/wippyai/script-bridge/script"
)

// Vec2 is a two-component float vector.
type Vec2 struct{ X, Y float64 }

// NewVec2 returns the vector (x, y).
func NewVec2(x, y float64) Vec2 { return Vec2{x, y} }

func (v *Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

func (v Vec2) Scaled(f float64) Vec2 { return Vec2{v.X * f, v.Y * f} }

func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// Normalize scales v to unit length in place. The zero vector stays zero.
func (v *Vec2) Normalize() {
	if l := v.Len(); l > 0 {
		v.X /= l
		v.Y /= l
	}
}

func (v Vec2) String() string { return fmt.Sprintf("Vec2(%g, %g)", v.X, v.Y) }

// Point is an integer grid position.
type Point struct{ X, Y int32 }

// Manhattan returns the grid distance between p and o.
func (p Point) Manhattan(o Point) int32 {
	return abs(p.X-o.X) + abs(p.Y-o.Y)
}

// Vec converts p to a float vector.
func (p Point) Vec() Vec2 { return Vec2{float64(p.X), float64(p.Y)} }

func (p Point) String() string { return fmt.Sprintf("Point(%d, %d)", p.X, p.Y) }

func abs(n int32) int32 {
	if n < 0 {
		return -n
	}
	return n
}

// Distance returns the euclidean distance between a and b.
func Distance(a, b *Vec2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func lerpVec(a, b *Vec2, t float64) Vec2 {
	return Vec2{lerp(a.X, b.X, t), lerp(a.Y, b.Y, t)}
}

func reflectMath(r *script.Reflection) error {
	vec, err := script.Class[Vec2]("Vec2").
		DefaultConstructor().
		Constructor(NewVec2).
		Fields().
		Method("len", (*Vec2).Len).
		Method("add", Vec2.Add).
		Method("sub", Vec2.Sub).
		Method("scaled", Vec2.Scaled).
		Method("dot", Vec2.Dot).
		Method("normalize", (*Vec2).Normalize).
		Static("zero", func() Vec2 { return Vec2{} }).
		Build()
	if err != nil {
		return err
	}
	point, err := script.Class[Point]("Point").
		DefaultConstructor().
		Constructor(func(x, y int32) Point { return Point{x, y} }).
		Fields().
		Method("manhattan", Point.Manhattan).
		Method("vec", Point.Vec).
		Build()
	if err != nil {
		return err
	}
	for _, td := range []*script.TypeData{vec, point} {
		if err := r.AddType(MathModule, td); err != nil {
			return err
		}
	}

	distance, err := script.Func("distance", Distance)
	if err != nil {
		return err
	}
	lerpFn, err := script.Overloaded("lerp", lerp, lerpVec)
	if err != nil {
		return err
	}
	for _, fd := range []*script.FunctionData{distance, lerpFn} {
		if err := r.AddFunction(MathModule, fd); err != nil {
			return err
		}
	}
	return nil
}
