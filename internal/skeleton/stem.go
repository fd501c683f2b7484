// Package skeleton builds the stem hierarchy of a parametric tree.
package skeleton

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/taper"
	"github.com/friggog/tree-gen/internal/turtle"
)

// Epsilon is the smallest length or base radius a stem is allowed to have.
const Epsilon = 1e-4

// Segment is one straight piece of a stem between two curve boundaries.
type Segment struct {
	// Index is the 1-based segment number along the full stem.
	Index      int
	Start      mgl64.Vec3
	End        mgl64.Vec3
	Direction  mgl64.Vec3
	Right      mgl64.Vec3
	RadiusIn   float64
	RadiusOut  float64
	CurveAngle float64
}

// Stem is one branch instance. A stem owns its segments, its next-level
// Children and the same-level Splits that forked off it. ParentID and
// SplitFrom are lookups into the owning Tree, -1 when absent.
type Stem struct {
	ID         int
	Level      int
	ParentID   int
	SplitFrom  int
	SplitIndex int

	Offset         float64
	Length         float64
	Radius         float64
	RadiusLimit    float64
	LengthChildMax float64
	Taper          float64
	Flare          float64
	Scale          float64
	Resolution     int
	FirstSegment   int
	Seed           uint64

	Start turtle.Turtle
	End   turtle.Turtle
	// Anchor and AnchorAxis are the parent axis point and tangent the stem
	// grows from; Outward is the radial direction it leaves the parent in,
	// zero for trunks and fan children.
	Anchor     mgl64.Vec3
	AnchorAxis mgl64.Vec3
	Outward    mgl64.Vec3

	Segments []Segment
	Children []*Stem
	Splits   []*Stem
}

// RadiusAt returns the stem radius at fraction z of its length, including
// trunk flare.
func (s *Stem) RadiusAt(z float64) float64 {
	r := taper.RadiusAt(s.Taper, s.Radius, s.Length, z)
	if s.Flare != 0 {
		r *= taper.Flare(s.Flare, z)
	}
	return r
}

// Frame returns the axis point, heading and right vector at fraction z.
// Clones only cover the stem from their first segment on; earlier fractions
// clamp to their start.
func (s *Stem) Frame(z float64) (pos, dir, right mgl64.Vec3) {
	if len(s.Segments) == 0 {
		return s.Start.Pos, s.Start.Dir, s.Start.Right
	}
	t := math.Min(1, math.Max(0, z)) * float64(s.Resolution)
	first := s.Segments[0].Index
	k := int(math.Ceil(t))
	if k < first {
		k = first
	}
	if last := s.Segments[len(s.Segments)-1].Index; k > last {
		k = last
	}
	seg := s.Segments[k-first]
	f := math.Min(1, math.Max(0, t-float64(k-1)))
	return seg.Start.Add(seg.End.Sub(seg.Start).Mul(f)), seg.Direction, seg.Right
}

// Tree is the finished skeleton.
type Tree struct {
	Params *params.ParameterSet
	Seed   uint64
	Trunks []*Stem

	stems []*Stem
}

// index assigns ids in depth-first order: a stem, then its splits, then its
// children.
func (t *Tree) index() {
	t.stems = t.stems[:0]
	var visit func(s *Stem, parentID, splitFrom int)
	visit = func(s *Stem, parentID, splitFrom int) {
		s.ID = len(t.stems)
		s.ParentID = parentID
		s.SplitFrom = splitFrom
		t.stems = append(t.stems, s)
		for _, c := range s.Splits {
			visit(c, parentID, s.ID)
		}
		for _, c := range s.Children {
			visit(c, s.ID, -1)
		}
	}
	for _, trunk := range t.Trunks {
		visit(trunk, -1, -1)
	}
}

// Stems returns every stem in id order. The slice must not be modified.
func (t *Tree) Stems() []*Stem {
	return t.stems
}

// Len is the total stem count, splits included.
func (t *Tree) Len() int {
	return len(t.stems)
}

// Stem looks a stem up by id.
func (t *Tree) Stem(id int) (*Stem, bool) {
	if id < 0 || id >= len(t.stems) {
		return nil, false
	}
	return t.stems[id], true
}

// Parent returns the next-level-up stem s grows from, nil for trunks.
func (t *Tree) Parent(s *Stem) *Stem {
	p, ok := t.Stem(s.ParentID)
	if !ok {
		return nil
	}
	return p
}

// Terminal reports whether s sits on the deepest level and carries foliage.
func (t *Tree) Terminal(s *Stem) bool {
	return s.Level == t.Params.Levels-1
}

// CountByLevel returns the number of stems per level.
func (t *Tree) CountByLevel() []int {
	counts := make([]int, t.Params.Levels)
	for _, s := range t.stems {
		if s.Level < len(counts) {
			counts[s.Level]++
		}
	}
	return counts
}

// SplitCount is the number of stems created by dichotomous splitting.
func (t *Tree) SplitCount() int {
	n := 0
	for _, s := range t.stems {
		if s.SplitIndex > 0 {
			n++
		}
	}
	return n
}
