package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/friggog/tree-gen/internal/skeleton"
	"github.com/friggog/tree-gen/internal/turtle"
)

const (
	collarScale  = 1.3
	collarInset  = 0.9
	minCollarGap = 1e-9
)

// part is the geometry of one stem with stem-local indices.
type part struct {
	vertices []mgl64.Vec3
	faces    []Face
	uvs      []mgl64.Vec2
}

func (pt *part) vertex(v mgl64.Vec3) int {
	pt.vertices = append(pt.vertices, v)
	return len(pt.vertices) - 1
}

func (pt *part) triangle(a, b, c int, ua, ub, uc mgl64.Vec2) {
	pt.faces = append(pt.faces, Face{a, b, c})
	pt.uvs = append(pt.uvs, ua, ub, uc)
}

// ring is a loop of sides vertices starting at first, or a single apex
// vertex.
type ring struct {
	first int
	apex  bool
	v     float64
}

type sample struct {
	z       float64
	center  mgl64.Vec3
	tangent mgl64.Vec3
	dist    float64
}

func sidesFor(sides, level int) int {
	return max(3, sides-2*level)
}

// samples lists the ring centres of s from its first boundary to the tip.
// Tangents at inner boundaries bisect the two segment directions.
func samples(s *skeleton.Stem, sub int) []sample {
	res := float64(s.Resolution)
	out := make([]sample, 0, len(s.Segments)*sub+1)
	dist := float64(s.Segments[0].Index-1) / res * s.Length
	for k, seg := range s.Segments {
		if k == 0 {
			out = append(out, sample{
				z:       float64(seg.Index-1) / res,
				center:  seg.Start,
				tangent: seg.Direction,
				dist:    dist,
			})
		}
		step := seg.End.Sub(seg.Start)
		for j := 1; j <= sub; j++ {
			f := float64(j) / float64(sub)
			tangent := seg.Direction
			if j == sub && k+1 < len(s.Segments) {
				tangent = turtle.Normalize(seg.Direction.Add(s.Segments[k+1].Direction), seg.Direction)
			}
			out = append(out, sample{
				z:       (float64(seg.Index-1) + f) / res,
				center:  seg.Start.Add(step.Mul(f)),
				tangent: tangent,
				dist:    dist + step.Len()*f,
			})
		}
		dist += step.Len()
	}
	return out
}

// tessellate builds the tube of one stem. Rings follow a parallel-transported
// frame so the surface does not twist between segments.
func tessellate(s *skeleton.Stem, opts Options) part {
	var pt part
	if len(s.Segments) == 0 {
		return pt
	}
	sides := sidesFor(opts.Sides, s.Level)
	sub := 1
	if s.Level == 0 || s.Taper > 1 {
		sub += opts.FlareRings
	}
	smp := samples(s, sub)
	circumference := 2 * math.Pi * s.Radius

	u := s.Segments[0].Right
	rings := make([]ring, 0, len(smp))
	for i, sm := range smp {
		u = turtle.Normalize(u.Sub(sm.tangent.Mul(u.Dot(sm.tangent))), turtle.Perpendicular(sm.tangent))
		w := sm.tangent.Cross(u)
		r := s.RadiusAt(sm.z)
		v := sm.dist / circumference

		if r <= 0 && i == len(smp)-1 {
			rings = append(rings, ring{first: pt.vertex(sm.center), apex: true, v: v})
			continue
		}
		first := len(pt.vertices)
		for j := 0; j < sides; j++ {
			a := 2 * math.Pi * float64(j) / float64(sides)
			pt.vertex(sm.center.Add(u.Mul(math.Cos(a) * r)).Add(w.Mul(math.Sin(a) * r)))
		}
		rings = append(rings, ring{first: first, v: v})
	}

	collared := false
	if opts.Joins && s.ParentID >= 0 && s.SplitIndex == 0 {
		if collar, ok := pt.collar(s, rings[0], sides, circumference); ok {
			pt.bridge(collar, rings[0], sides)
			collared = true
		}
	}
	for i := 1; i < len(rings); i++ {
		pt.bridge(rings[i-1], rings[i], sides)
	}

	if opts.Caps {
		if !collared && s.SplitIndex == 0 {
			pt.cap(rings[0], smp[0].center, sides, true)
		}
		if last := rings[len(rings)-1]; !last.apex {
			pt.cap(last, smp[len(smp)-1].center, sides, false)
		}
	}
	return pt
}

// bridge connects two consecutive rings with outward-facing triangles.
func (pt *part) bridge(a, b ring, sides int) {
	for j := 0; j < sides; j++ {
		j1 := (j + 1) % sides
		u0 := float64(j) / float64(sides)
		u1 := float64(j+1) / float64(sides)
		if b.apex {
			pt.triangle(a.first+j, a.first+j1, b.first,
				mgl64.Vec2{u0, a.v}, mgl64.Vec2{u1, a.v}, mgl64.Vec2{(u0 + u1) / 2, b.v})
			continue
		}
		v00, v01 := a.first+j, a.first+j1
		v10, v11 := b.first+j, b.first+j1
		pt.triangle(v00, v01, v11, mgl64.Vec2{u0, a.v}, mgl64.Vec2{u1, a.v}, mgl64.Vec2{u1, b.v})
		pt.triangle(v00, v11, v10, mgl64.Vec2{u0, a.v}, mgl64.Vec2{u1, b.v}, mgl64.Vec2{u0, b.v})
	}
}

// collar adds a ring on the parent surface around the child base: the base
// ring widened by collarScale and projected onto a cylinder slightly inside
// the parent. Vertex j of the collar derives from vertex j of the base, so
// the two rings are aligned by construction.
func (pt *part) collar(s *skeleton.Stem, base ring, sides int, circumference float64) (ring, bool) {
	axis := s.AnchorAxis
	parentR := s.RadiusLimit
	if base.apex || parentR <= 0 || s.Outward.Len() < minCollarGap || axis.Len() < minCollarGap {
		return ring{}, false
	}
	axis = axis.Normalize()
	center := s.Start.Pos

	points := make([]mgl64.Vec3, sides)
	gap := 0.0
	for j := range points {
		b := pt.vertices[base.first+j]
		widened := center.Add(b.Sub(center).Mul(collarScale))
		d := widened.Sub(s.Anchor)
		along := d.Dot(axis)
		radial := turtle.Normalize(d.Sub(axis.Mul(along)), s.Outward)
		points[j] = s.Anchor.Add(axis.Mul(along)).Add(radial.Mul(collarInset * parentR))
		gap += points[j].Sub(b).Len()
	}

	first := len(pt.vertices)
	pt.vertices = append(pt.vertices, points...)
	return ring{first: first, v: base.v - gap/float64(sides)/circumference}, true
}

// cap closes a ring with a fan around its centre. Base caps face backwards.
func (pt *part) cap(r ring, center mgl64.Vec3, sides int, base bool) {
	c := pt.vertex(center)
	mid := mgl64.Vec2{0.5, 0.5}
	for j := 0; j < sides; j++ {
		j1 := (j + 1) % sides
		a0 := 2 * math.Pi * float64(j) / float64(sides)
		a1 := 2 * math.Pi * float64(j+1) / float64(sides)
		uv0 := mgl64.Vec2{0.5 + 0.5*math.Cos(a0), 0.5 + 0.5*math.Sin(a0)}
		uv1 := mgl64.Vec2{0.5 + 0.5*math.Cos(a1), 0.5 + 0.5*math.Sin(a1)}
		if base {
			pt.triangle(c, r.first+j1, r.first+j, mid, uv1, uv0)
		} else {
			pt.triangle(r.first+j, r.first+j1, c, uv0, uv1, mid)
		}
	}
}
