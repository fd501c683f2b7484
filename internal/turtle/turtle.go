// Package turtle implements the 3D turtle used to trace stems.
package turtle

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	Up    = mgl64.Vec3{0, 0, 1}
	XAxis = mgl64.Vec3{1, 0, 0}
	YAxis = mgl64.Vec3{0, 1, 0}
)

// Turtle carries a position and an orthonormal heading (Dir) and side (Right)
// vector. Angles are in degrees.
type Turtle struct {
	Pos   mgl64.Vec3
	Dir   mgl64.Vec3
	Right mgl64.Vec3
}

// New returns a turtle at the origin facing up with right along +X.
func New() Turtle {
	return Turtle{Dir: Up, Right: XAxis}
}

// Normal is the turtle's local up vector, perpendicular to Dir and Right.
func (t Turtle) Normal() mgl64.Vec3 {
	return Normalize(t.Dir.Cross(t.Right), Perpendicular(t.Dir))
}

func (t *Turtle) rotate(axis mgl64.Vec3, degrees float64) {
	q := mgl64.QuatRotate(mgl64.DegToRad(degrees), axis)
	t.Dir = Normalize(q.Rotate(t.Dir), t.Dir)
	t.Right = Normalize(q.Rotate(t.Right), t.Right)
}

// Rotate turns both heading vectors about a world axis.
func (t *Turtle) Rotate(axis mgl64.Vec3, degrees float64) {
	n := axis.Len()
	if n < 1e-12 {
		return
	}
	t.rotate(axis.Mul(1/n), degrees)
}

// TurnRight rotates about the local normal.
func (t *Turtle) TurnRight(degrees float64) {
	t.rotate(t.Normal(), degrees)
}

// TurnLeft rotates about the local normal in the opposite sense.
func (t *Turtle) TurnLeft(degrees float64) {
	t.rotate(t.Normal(), -degrees)
}

// PitchDown tips the heading about the right axis.
func (t *Turtle) PitchDown(degrees float64) {
	q := mgl64.QuatRotate(mgl64.DegToRad(-degrees), t.Right)
	t.Dir = Normalize(q.Rotate(t.Dir), t.Dir)
}

// RollRight spins the right vector about the heading.
func (t *Turtle) RollRight(degrees float64) {
	q := mgl64.QuatRotate(mgl64.DegToRad(degrees), t.Dir)
	t.Right = Normalize(q.Rotate(t.Right), t.Right)
}

// Move advances along the heading.
func (t *Turtle) Move(distance float64) {
	t.Pos = t.Pos.Add(t.Dir.Mul(distance))
}

// ApplyTropism bends the heading toward v. The angle is 10 degrees times the
// magnitude of Dir x v, scaled by weight.
func (t *Turtle) ApplyTropism(v mgl64.Vec3, weight float64) {
	axis := t.Dir.Cross(v)
	n := axis.Len()
	if n < 1e-12 || weight == 0 {
		return
	}
	t.rotate(axis.Mul(1/n), 10*n*weight)
}

// Declination is the angle between v and world up, in degrees.
func Declination(v mgl64.Vec3) float64 {
	return mgl64.RadToDeg(math.Atan2(math.Hypot(v[0], v[1]), v[2]))
}

// Normalize returns v scaled to unit length, or fallback when v is degenerate.
func Normalize(v, fallback mgl64.Vec3) mgl64.Vec3 {
	n := v.Len()
	if n < 1e-12 || math.IsNaN(n) || math.IsInf(n, 0) {
		return fallback
	}
	return v.Mul(1 / n)
}

// Perpendicular returns some unit vector perpendicular to v.
func Perpendicular(v mgl64.Vec3) mgl64.Vec3 {
	axis := XAxis
	if math.Abs(v[0]) > 0.9 {
		axis = YAxis
	}
	return Normalize(v.Cross(axis), YAxis)
}
