package skeleton

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/turtle"
	"github.com/friggog/tree-gen/internal/variation"
)

// Attachment is a point on a stem where a child stem or a leaf is placed.
type Attachment struct {
	Index int
	// Offset is the distance from the stem base along its length.
	Offset float64
	// Position and Axis are the stem axis point and tangent at Offset.
	Position mgl64.Vec3
	Axis     mgl64.Vec3
	// Outward is the unit radial direction the attachment faces. It is zero
	// for fan placements at the tip.
	Outward      mgl64.Vec3
	ParentRadius float64
	// Frame is the initial heading of the attached item, positioned on the
	// axis.
	Frame turtle.Turtle
}

// Attachments spreads count items over s, using the placement rules of level
// s.Level+1. Items are evenly spaced (alternating or opposite) when
// distribution is at most 1 and grouped into whorls of round(distribution)+1
// above that. A negative count places -count items in a fan at the tip.
func Attachments(p *params.ParameterSet, s *Stem, count int, rng *variation.Stream) []Attachment {
	if count == 0 || s.Length <= 0 || len(s.Segments) == 0 {
		return nil
	}
	if count < 0 {
		return fan(p, s, -count, rng)
	}

	next := s.Level + 1
	dist := math.Max(0, params.At(p.Distribution, next))
	rot := params.At(p.Rotation, next)
	rotV := params.At(p.RotationVariation, next)
	lo := math.Max(params.At(p.BaseSize, s.Level)*s.Length, float64(s.FirstSegment)/float64(s.Resolution)*s.Length)
	hi := s.Length
	if lo > hi {
		lo = hi
	}

	out := make([]Attachment, 0, count)
	if dist > 1 {
		perWhorl := int(math.Round(dist)) + 1
		whorls := (count + perWhorl - 1) / perWhorl
		prev := rng.Uniform(0, rotV)
		placed := 0
		for w := 0; w < whorls; w++ {
			inWhorl := min(perWhorl, count-placed)
			offset := lo + (float64(w)+0.5)/float64(whorls)*(hi-lo)
			for i := 0; i < inWhorl; i++ {
				angle := prev + 360*float64(i)/float64(inWhorl) + rng.Uniform(0, rotV)
				out = append(out, place(p, s, placed, offset, angle, rng))
				placed++
			}
			prev += rot
		}
		return out
	}

	prev := 1.0
	if rot >= 0 {
		prev = rng.Uniform(0, rotV)
	}
	for i := 0; i < count; i++ {
		side := 1.0
		if i%2 == 1 {
			side = -1
		}
		u := math.Min(1, (float64(i)+0.5+0.5*dist*side)/float64(count))
		offset := lo + u*(hi-lo)

		var angle float64
		if rot >= 0 {
			angle = math.Mod(prev+rot+rng.Uniform(0, rotV), 360)
			prev = angle
		} else {
			// negative rotation alternates sides around 180 degrees
			angle = prev * (180 + rot + rng.Uniform(0, rotV))
			prev = -prev
		}
		out = append(out, place(p, s, i, offset, angle, rng))
	}
	return out
}

func place(p *params.ParameterSet, s *Stem, index int, offset, angle float64, rng *variation.Stream) Attachment {
	z := offset / s.Length
	pos, dir, right := s.Frame(z)

	frame := turtle.Turtle{Pos: pos, Dir: dir, Right: right}
	frame.RollRight(angle)
	radial := frame
	radial.PitchDown(90)
	frame.PitchDown(downAngle(p, s, offset, rng))

	return Attachment{
		Index:        index,
		Offset:       offset,
		Position:     pos,
		Axis:         dir,
		Outward:      radial.Dir,
		ParentRadius: s.RadiusAt(z),
		Frame:        frame,
	}
}

// fan places n items at the tip of s, spread over the rotation angle. The tip
// may close to a point, so fan children are limited by the base radius.
func fan(p *params.ParameterSet, s *Stem, n int, rng *variation.Stream) []Attachment {
	next := s.Level + 1
	rot := params.At(p.Rotation, next)
	rotV := params.At(p.RotationVariation, next)
	pos, dir, right := s.Frame(1)

	out := make([]Attachment, 0, n)
	for i := 0; i < n; i++ {
		frame := turtle.Turtle{Pos: pos, Dir: dir, Right: right}
		if n > 1 {
			frame.TurnRight(rot*(float64(i)/float64(n-1)-0.5) + rng.Uniform(0, rotV))
		}
		frame.PitchDown(downAngle(p, s, s.Length, rng))
		out = append(out, Attachment{
			Index:        i,
			Offset:       s.Length,
			Position:     pos,
			Axis:         dir,
			ParentRadius: s.Radius,
			Frame:        frame,
		})
	}
	return out
}

// downAngle is the angle between the parent axis and an attached item. A
// negative variation makes it depend on the position along the parent
// instead of on chance.
func downAngle(p *params.ParameterSet, s *Stem, offset float64, rng *variation.Stream) float64 {
	next := s.Level + 1
	down := params.At(p.DownAngle, next)
	v := params.At(p.DownAngleVariation, next)
	if v >= 0 {
		return rng.Uniform(down, v)
	}
	ratio := 0.0
	if span := s.Length * (1 - params.At(p.BaseSize, s.Level)); span > 0 {
		ratio = (s.Length - offset) / span
	}
	return down + v*(1-2*(0.2+0.8*ratio))
}
