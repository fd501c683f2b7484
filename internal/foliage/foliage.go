// Package foliage places leaf and blossom instances on the terminal stems of
// a skeleton. It emits transforms only; leaf geometry is left to the consumer.
package foliage

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/skeleton"
	"github.com/friggog/tree-gen/internal/turtle"
	"github.com/friggog/tree-gen/internal/variation"
)

const (
	DefaultLeafShape    = 8
	MaxLeafShape        = 10
	DefaultBlossomShape = 1
	MaxBlossomShape     = 3
)

// Instance is one placed leaf or blossom.
type Instance struct {
	StemID    int        `json:"stemId"`
	Position  mgl64.Vec3 `json:"position"`
	Direction mgl64.Vec3 `json:"direction"`
	Right     mgl64.Vec3 `json:"right"`
	Normal    mgl64.Vec3 `json:"normal"`
	Shape     int        `json:"shape"`
	Scale     float64    `json:"scale"`
	Width     float64    `json:"width"`
}

// Quad returns the corners of a flat card spanning the instance, base edge
// first, wound counter-clockwise around Normal.
func (i Instance) Quad() [4]mgl64.Vec3 {
	half := i.Right.Mul(i.Width / 2)
	tip := i.Position.Add(i.Direction.Mul(i.Scale))
	return [4]mgl64.Vec3{
		i.Position.Sub(half),
		i.Position.Add(half),
		tip.Add(half),
		tip.Sub(half),
	}
}

// Placement holds every instance of a tree, in stem id order.
type Placement struct {
	Leaves   []Instance `json:"leaves"`
	Blossoms []Instance `json:"blossoms"`
}

// Place distributes foliage over the terminal stems of tree. Trees with a
// single level carry no foliage.
func Place(tree *skeleton.Tree) Placement {
	var out Placement
	p := tree.Params
	if p.LeafCount == 0 || p.Levels < 2 {
		return out
	}
	leafShape := clampShape(p.LeafShape, MaxLeafShape, DefaultLeafShape)
	blossomShape := clampShape(p.BlossomShape, MaxBlossomShape, DefaultBlossomShape)

	for _, s := range tree.Stems() {
		if !tree.Terminal(s) {
			continue
		}
		rng := variation.New(variation.Derive(s.Seed, skeleton.KeyFoliage))
		count := leafCount(p, s, tree.Parent(s))
		for _, at := range skeleton.Attachments(p, s, count, rng) {
			inst := orient(at.Frame, at.Position, p.LeafBend)
			inst.StemID = s.ID
			size := s.Scale / p.Height

			if rng.Float64() < p.BlossomRate {
				inst.Shape = blossomShape
				inst.Scale = p.BlossomScale * size
				inst.Width = inst.Scale
				out.Blossoms = append(out.Blossoms, inst)
				continue
			}
			inst.Shape = leafShape
			inst.Scale = p.LeafScale * size
			inst.Width = inst.Scale * p.LeafWidth
			out.Leaves = append(out.Leaves, inst)
		}
	}
	return out
}

// leafCount scales the configured count by tree size and by how long the
// stem is relative to the longest child its parent allows. Splits only carry
// their share of the stem. Negative counts are fans and pass through.
func leafCount(p *params.ParameterSet, s, parent *skeleton.Stem) int {
	if p.LeafCount < 0 {
		return p.LeafCount
	}
	n := float64(p.LeafCount) * s.Scale / p.Height
	if parent != nil {
		if longest := parent.LengthChildMax * parent.Length; longest > 0 {
			n *= s.Length / longest
		}
	}
	n *= 1 - float64(s.FirstSegment)/float64(s.Resolution)
	return int(math.Round(n))
}

// orient applies the leaf bend: a turn about world up toward the radial
// direction of the position, then a pitch of the leaf normal toward world up.
func orient(frame turtle.Turtle, pos mgl64.Vec3, bend float64) Instance {
	dir := frame.Dir
	right := frame.Right
	normal := frame.Normal()

	if bend != 0 {
		theta := (math.Atan2(pos[1], pos[0]) - math.Atan2(normal[1], normal[0])) * bend
		q := mgl64.QuatRotate(theta, turtle.Up)
		dir, right, normal = q.Rotate(dir), q.Rotate(right), q.Rotate(normal)

		phi := mgl64.DegToRad(turtle.Declination(normal))
		if phi > math.Pi/2 {
			phi -= math.Pi
		}
		if axis := normal.Cross(turtle.Up); axis.Len() > 1e-12 {
			q = mgl64.QuatRotate(phi*bend, axis.Normalize())
			dir, right, normal = q.Rotate(dir), q.Rotate(right), q.Rotate(normal)
		}
	}

	return Instance{
		Position:  pos,
		Direction: turtle.Normalize(dir, turtle.Up),
		Right:     turtle.Normalize(right, turtle.XAxis),
		Normal:    turtle.Normalize(normal, turtle.YAxis),
	}
}

func clampShape(id, maxID, fallback int) int {
	if id < 1 || id > maxID {
		return fallback
	}
	return id
}
