package skeleton

import (
	"context"
	"errors"
	"math"
	"runtime"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"github.com/friggog/tree-gen/internal/envelope"
	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/taper"
	"github.com/friggog/tree-gen/internal/turtle"
	"github.com/friggog/tree-gen/internal/variation"
)

// Seed derivation keys. Every stream is derived from the tree seed through a
// fixed key path so that results do not depend on build order.
const (
	keyTree uint64 = iota + 1
	keyTrunk
	keyStem
	keyChild
	keySplit
	keyTrace
	// KeyFoliage derives the leaf placement stream of a stem.
	KeyFoliage
)

const (
	pruneShrink  = 0.9
	pruneMinimum = 0.15
)

// Options tunes how the skeleton is built. None of them change the result.
type Options struct {
	// Workers bounds the number of trunks grown concurrently. Zero uses
	// GOMAXPROCS.
	Workers int
}

// Build grows the full stem hierarchy for p and seed. Equal inputs always
// produce identical trees, independent of Options.
func Build(ctx context.Context, p *params.ParameterSet, seed uint64, opts Options) (*Tree, error) {
	if p == nil {
		return nil, errors.New("skeleton: nil parameter set")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b := &builder{p: p.Clone()}
	b.env = envelope.New(b.p)

	n := b.p.TrunkCount()
	origins, err := b.trunkOrigins(seed, n)
	if err != nil {
		return nil, err
	}

	trunks := make([]*Stem, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(opts.Workers, n))
	for i := range trunks {
		g.Go(func() error {
			stem, err := b.growTrunk(gctx, origins[i], variation.Derive(seed, keyTrunk, uint64(i)))
			if err != nil {
				return err
			}
			trunks[i] = stem
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tree := &Tree{Params: b.p, Seed: seed}
	for _, trunk := range trunks {
		if trunk != nil {
			tree.Trunks = append(tree.Trunks, trunk)
		}
	}
	tree.index()
	return tree, nil
}

func workerCount(requested, jobs int) int {
	workers := requested
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > jobs {
		workers = jobs
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

type builder struct {
	p   *params.ParameterSet
	env envelope.Envelope
}

// trunkContext is the per-trunk state children read while growing.
type trunkContext struct {
	scale      float64
	baseLength float64
}

// growth describes a stem about to be grown.
type growth struct {
	level  int
	seed   uint64
	parent *Stem
	attach *Attachment
	origin turtle.Turtle
}

// trunkOrigins places the trunks. A single trunk sits at the origin; several
// are spread evenly on a ring, each rolled to face outward.
func (b *builder) trunkOrigins(seed uint64, n int) ([]turtle.Turtle, error) {
	rng := variation.New(variation.Derive(seed, keyTree))
	rot := params.At(b.p.Rotation, 0)
	rotV := params.At(b.p.RotationVariation, 0)
	origins := make([]turtle.Turtle, n)

	if n == 1 {
		t := turtle.New()
		t.RollRight(rng.Uniform(rot, rotV))
		origins[0] = t
		return origins, rng.Err()
	}

	ring := math.Sqrt(float64(n) / 2.5 * b.p.Height * b.p.Ratio)
	for i := range origins {
		theta := 2*math.Pi*float64(i)/float64(n) + mgl64.DegToRad(rng.Uniform(rot, rotV))
		t := turtle.New()
		t.Pos = mgl64.Vec3{ring * math.Cos(theta), ring * math.Sin(theta), 0}
		t.RollRight(mgl64.RadToDeg(theta) - 90)
		origins[i] = t
	}
	return origins, rng.Err()
}

func (b *builder) growTrunk(ctx context.Context, origin turtle.Turtle, seed uint64) (*Stem, error) {
	rng := variation.New(seed)
	scale := math.Max(Epsilon, rng.Uniform(b.p.Height, b.p.HeightVariation))
	if err := rng.Err(); err != nil {
		return nil, err
	}
	tc := &trunkContext{scale: scale}
	return b.grow(ctx, tc, growth{level: 0, seed: variation.Derive(seed, keyStem), origin: origin})
}

// grow builds one stem, its splits and, recursively, its children. A nil stem
// with a nil error means the stem was pruned away.
func (b *builder) grow(ctx context.Context, tc *trunkContext, g growth) (*Stem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := b.p
	d := g.level
	rng := variation.New(g.seed)

	s := &Stem{
		Level:       d,
		ParentID:    -1,
		SplitFrom:   -1,
		Seed:        g.seed,
		Taper:       params.At(p.Taper, d),
		Resolution:  max(1, params.At(p.CurveResolution, d)),
		Scale:       tc.scale,
		RadiusLimit: -1,
	}
	if d == 0 {
		s.Flare = p.Flare
	}
	s.LengthChildMax = rng.Uniform(params.At(p.Length, d+1), params.At(p.LengthVariation, d+1))
	if g.attach != nil {
		s.Offset = g.attach.Offset
		s.RadiusLimit = g.attach.ParentRadius
		s.Anchor = g.attach.Position
		s.AnchorAxis = g.attach.Axis
		s.Outward = g.attach.Outward
	} else {
		s.Anchor = g.origin.Pos
		s.AnchorAxis = g.origin.Dir
	}

	length := b.stemLength(tc, rng, s, g.parent)
	if err := rng.Err(); err != nil {
		return nil, err
	}
	if d == 0 {
		tc.baseLength = length * params.At(p.BaseSize, 0)
	}

	if b.env.Active() {
		fitted, keep, err := b.prune(tc, s, g, length)
		if err != nil {
			return nil, err
		}
		if !keep {
			return nil, nil
		}
		length = fitted
	}

	b.setLength(s, g.parent, length)
	pa, err := b.trace(s, b.startFrame(s, g), 0, s.Seed, traceState{cloneProb: 1})
	if err != nil {
		return nil, err
	}
	b.materialize(s, pa)

	if err := b.populate(ctx, tc, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (b *builder) stemLength(tc *trunkContext, rng *variation.Stream, s, parent *Stem) float64 {
	p := b.p
	var l float64
	switch {
	case s.Level == 0 || parent == nil:
		l = tc.scale * rng.Uniform(params.At(p.Length, 0), params.At(p.LengthVariation, 0))
	case s.Level == 1:
		ratio := 0.0
		if span := parent.Length - tc.baseLength; span > Epsilon {
			ratio = math.Min(1, math.Max(0, (parent.Length-s.Offset)/span))
		}
		l = parent.Length * parent.LengthChildMax * b.env.ShapeRatio(p.Shape, ratio)
	default:
		l = parent.LengthChildMax * (parent.Length - 0.7*s.Offset)
	}
	return math.Max(Epsilon, l)
}

// setLength fixes the stem length and derives its base radius from it.
func (b *builder) setLength(s, parent *Stem, length float64) {
	p := b.p
	s.Length = math.Max(Epsilon, length)
	if s.Level == 0 || parent == nil {
		s.Radius = taper.TrunkRadius(s.Length, p.Ratio, params.At(p.RadiusModifier, 0))
	} else {
		s.Radius = taper.ChildRadius(params.At(p.RadiusModifier, s.Level), parent.Radius, s.Length, parent.Length, p.RatioPower, s.RadiusLimit)
	}
	s.Radius = math.Max(Epsilon, s.Radius)
}

// startFrame is the turtle a stem starts tracing from. Children start on the
// parent surface, sunk in by their own radius so the base is covered.
func (b *builder) startFrame(s *Stem, g growth) turtle.Turtle {
	if g.attach == nil {
		return g.origin
	}
	t := g.attach.Frame
	inset := g.attach.ParentRadius - math.Min(s.Radius, g.attach.ParentRadius)
	t.Pos = g.attach.Position.Add(g.attach.Outward.Mul(inset))
	return t
}

// prune shrinks a stem until it and all its splits fit the envelope and
// returns the blended length. keep is false when a hard envelope rejects it.
func (b *builder) prune(tc *trunkContext, s *Stem, g growth, length float64) (float64, bool, error) {
	fitted := length
	for {
		ok, err := b.fits(tc, s, g, fitted)
		if err != nil {
			return 0, false, err
		}
		if ok {
			break
		}
		fitted *= pruneShrink
		if fitted < pruneMinimum*length {
			if b.env.Hard() {
				return 0, false, nil
			}
			fitted = 0
			break
		}
	}
	return b.env.Blend(length, fitted), true, nil
}

func (b *builder) fits(tc *trunkContext, s *Stem, g growth, length float64) (bool, error) {
	probe := *s
	b.setLength(&probe, g.parent, length)
	pa, err := b.trace(&probe, b.startFrame(&probe, g), 0, probe.Seed, traceState{cloneProb: 1})
	if err != nil {
		return false, err
	}
	return b.inside(tc, pa, probe.Level == 0), nil
}

// inside reports whether every traced point lies in the envelope. Trunk
// points below the crown base are exempt.
func (b *builder) inside(tc *trunkContext, pa *path, trunk bool) bool {
	for _, f := range pa.frames {
		if trunk && b.env.HeightFraction(f.Pos[2], tc.scale) < 0 {
			continue
		}
		if !b.env.Contains(f.Pos, tc.scale) {
			return false
		}
	}
	for _, fk := range pa.forks {
		if !b.inside(tc, fk.path, trunk) {
			return false
		}
	}
	return true
}

// populate grows the children of s and of every split that forked off it.
func (b *builder) populate(ctx context.Context, tc *trunkContext, s *Stem) error {
	if s.Level < b.p.Levels-1 {
		rng := variation.New(variation.Derive(s.Seed, keyChild))
		for _, at := range Attachments(b.p, s, b.childCount(s), rng) {
			child, err := b.grow(ctx, tc, growth{
				level:  s.Level + 1,
				seed:   variation.Derive(s.Seed, keyChild, uint64(at.Index)),
				parent: s,
				attach: &at,
			})
			if err != nil {
				return err
			}
			if child != nil {
				s.Children = append(s.Children, child)
			}
		}
		if err := rng.Err(); err != nil {
			return err
		}
	}
	for _, c := range s.Splits {
		if err := b.populate(ctx, tc, c); err != nil {
			return err
		}
	}
	return nil
}

// childCount is the number of next-level stems s carries. Splits only carry
// their share of the stem they cover; a negative count places a fan at the
// tip and is never scaled.
func (b *builder) childCount(s *Stem) int {
	n := params.At(b.p.Branches, s.Level+1)
	if n <= 0 || s.FirstSegment == 0 {
		return n
	}
	covered := float64(s.Resolution-s.FirstSegment) / float64(s.Resolution)
	return int(math.Round(float64(n) * covered))
}

// materialize turns a traced path into segments and split stems.
func (b *builder) materialize(s *Stem, pa *path) {
	s.FirstSegment = pa.first
	s.Start = pa.frames[0]
	s.End = pa.frames[len(pa.frames)-1]
	res := float64(s.Resolution)
	for i := 1; i < len(pa.frames); i++ {
		k := pa.first + i
		prev := pa.frames[i-1]
		s.Segments = append(s.Segments, Segment{
			Index:      k,
			Start:      prev.Pos,
			End:        pa.frames[i].Pos,
			Direction:  prev.Dir,
			Right:      prev.Right,
			RadiusIn:   s.RadiusAt(float64(k-1) / res),
			RadiusOut:  s.RadiusAt(float64(k) / res),
			CurveAngle: pa.curve[i-1],
		})
	}
	for _, fk := range pa.forks {
		c := &Stem{
			ParentID:       -1,
			SplitFrom:      -1,
			SplitIndex:     fk.index + 1,
			Level:          s.Level,
			Offset:         s.Offset,
			Length:         s.Length,
			Radius:         s.Radius,
			RadiusLimit:    s.RadiusLimit,
			LengthChildMax: s.LengthChildMax,
			Taper:          s.Taper,
			Flare:          s.Flare,
			Scale:          s.Scale,
			Resolution:     s.Resolution,
			Seed:           fk.seed,
			Anchor:         s.Anchor,
			AnchorAxis:     s.AnchorAxis,
			Outward:        s.Outward,
		}
		b.materialize(c, fk.path)
		s.Splits = append(s.Splits, c)
	}
}
