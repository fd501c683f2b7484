package skeleton

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/turtle"
	"github.com/friggog/tree-gen/internal/variation"
)

// path is the turtle trace of one stem from boundary first to the tip.
// frames[i] is the turtle state at boundary first+i after turning there.
type path struct {
	first  int
	frames []turtle.Turtle
	curve  []float64
	forks  []fork
}

// fork is a clone split off a path.
type fork struct {
	index int
	seed  uint64
	path  *path
}

// traceState is carried from a stem into its clones.
type traceState struct {
	splitCorr float64
	cloneProb float64
	splitErr  float64
}

// trace walks a stem of s.Length from start, bending and splitting as it
// goes. Tracing is a pure function of its arguments, so pruning can retrace a
// stem at several lengths and get the same shape back.
func (b *builder) trace(s *Stem, start turtle.Turtle, first int, seed uint64, st traceState) (*path, error) {
	p := b.p
	d := s.Level
	res := s.Resolution
	rng := variation.New(variation.Derive(seed, keyTrace))
	segLen := s.Length / float64(res)
	segSplits := params.At(p.SegmentSplits, d)

	if first == 0 {
		// fractional split rates start from a random phase
		phase := rng.Float64()
		if segSplits != math.Trunc(segSplits) {
			st.splitErr = phase
		}
	}
	baseSeg := b.trunkSplitSegment(res)

	t := start
	pa := &path{first: first, frames: []turtle.Turtle{t}, curve: []float64{0}}
	accum := 0.0
	for seg := first + 1; seg <= res; seg++ {
		t.Move(segLen)
		remaining := res + 1 - seg

		n := 0
		trunkSplit := false
		switch {
		case d == 0 && seg == baseSeg && p.TrunkSplits != 0:
			trunkSplit = true
			if p.TrunkSplits > 0 {
				n = p.TrunkSplits
			} else {
				n = rng.Intn(-p.TrunkSplits + 1)
			}
		case segSplits > 0 && seg < res && (d > 0 || seg > baseSeg):
			want := segSplits * st.cloneProb
			n = int(math.Floor(want + st.splitErr))
			st.splitErr -= float64(n) - want
			if n > 0 {
				st.cloneProb /= float64(n + 1)
			}
		}

		if n > 0 {
			pitch, forks, err := b.split(s, &t, splitAt{
				seg: seg, remaining: remaining, n: n, trunk: trunkSplit, seed: seed,
			}, &st, rng)
			if err != nil {
				return nil, err
			}
			accum += pitch
			pa.forks = append(pa.forks, forks...)
		} else {
			t.TurnLeft(rng.Uniform(0, params.At(p.BendVariation, d)/float64(res)))
			angle := b.curveAngle(d, seg, res, rng) - st.splitCorr
			t.PitchDown(angle)
			accum += angle
		}
		b.tropism(&t, d, seg, res)

		pa.frames = append(pa.frames, t)
		pa.curve = append(pa.curve, accum)
	}
	return pa, rng.Err()
}

// trunkSplitSegment is the boundary at which trunk splits happen, or -1 when
// the trunk is too coarse to split.
func (b *builder) trunkSplitSegment(res int) int {
	if res < 2 {
		return -1
	}
	seg := int(math.Ceil(params.At(b.p.BaseSize, 0) * float64(res)))
	return min(max(seg, 1), res-1)
}

type splitAt struct {
	seg       int
	remaining int
	n         int
	trunk     bool
	seed      uint64
}

// split forks n clones off the turtle at the current boundary and steers the
// primary continuation. It returns the pitch applied to the primary.
func (b *builder) split(s *Stem, t *turtle.Turtle, at splitAt, st *traceState, rng *variation.Stream) (float64, []fork, error) {
	p := b.p
	d := s.Level
	angle := params.At(p.SplitAngle, d)
	angleV := params.At(p.SplitAngleVariation, d)
	direct := angle < 0
	n := at.n

	var splAngle, sprAngle float64
	if direct {
		if !at.trunk && n > 2 {
			n = 2
		}
		sprAngle = math.Abs(angle) + rng.Uniform(0, angleV)
		st.splitCorr = 0
	} else {
		decl := turtle.Declination(t.Dir)
		splAngle = math.Max(0, angle+rng.Uniform(0, angleV)-decl)
		st.splitCorr = splAngle / float64(at.remaining)
		spread := 1.0/3 + rng.Uniform(0, math.Min(1.0/3, math.Abs(angleV)/90))
		sprAngle = -(20 + 0.75*(30+math.Abs(decl-90)*spread))
	}

	forks := make([]fork, 0, n)
	for i := 0; i < n; i++ {
		ct := *t
		ct.PitchDown(splAngle / 2)

		var eff float64
		if at.trunk && !direct {
			eff = float64(i+1)*360/float64(n+1) + rng.Uniform(0, angleV)
		} else {
			side := 1.0
			if i%2 == 1 {
				side = -1
			}
			eff = side * sprAngle / 2 * float64(1+i/2)
		}
		if direct {
			ct.TurnLeft(eff)
		} else {
			ct.Rotate(turtle.Up, eff)
		}
		b.tropism(&ct, d, at.seg, s.Resolution)

		cseed := variation.Derive(at.seed, keySplit, uint64(at.seg), uint64(i))
		clone, err := b.trace(s, ct, at.seg, cseed, *st)
		if err != nil {
			return 0, nil, err
		}
		forks = append(forks, fork{index: i, seed: cseed, path: clone})
	}

	t.PitchDown(splAngle / 2)
	if !at.trunk && n == 1 {
		if direct {
			t.TurnRight(sprAngle / 2)
		} else {
			t.Rotate(turtle.Up, -sprAngle/2)
		}
	}
	return splAngle / 2, forks, nil
}

// curveAngle is the pitch applied at a plain boundary. With curveBack set the
// stem curves one way over its lower half and the other way over the upper.
func (b *builder) curveAngle(d, seg, res int, rng *variation.Stream) float64 {
	p := b.p
	r := float64(res)
	curve := params.At(p.Curve, d)
	back := params.At(p.CurveBack, d)

	var angle float64
	switch {
	case back == 0:
		angle = curve / r
	case float64(seg) <= r/2:
		angle = curve / (r / 2)
	default:
		angle = back / (r / 2)
	}
	return angle + rng.Uniform(0, math.Abs(params.At(p.CurveVariation, d))/r)
}

// tropism bends the heading toward the tropism vector. The first two levels
// only feel its horizontal part.
func (b *builder) tropism(t *turtle.Turtle, d, seg, res int) {
	v := mgl64.Vec3(b.p.Tropism)
	if d <= 1 {
		v[2] = 0
	}
	t.ApplyTropism(v, 2*float64(seg)/float64(res))
}
