// Package envelope evaluates the crown silhouette that limits branch growth.
package envelope

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/friggog/tree-gen/internal/params"
)

// Tolerance absorbs rounding when testing points against the bound.
const Tolerance = 1e-9

// Envelope is a stateless view of the pruning fields of a parameter set.
type Envelope struct {
	shape    params.TreeShape
	ratio    float64
	width    float64
	peak     float64
	powLow   float64
	powHigh  float64
	baseSize float64
}

func New(p *params.ParameterSet) Envelope {
	e := Envelope{
		shape:    p.Shape,
		ratio:    p.PruneRatio,
		width:    p.PruneWidth,
		peak:     p.PruneWidthPeak,
		powLow:   p.PrunePowerLow,
		powHigh:  p.PrunePowerHigh,
		baseSize: params.At(p.BaseSize, 0),
	}
	if e.shape == params.Custom {
		e.ratio = 1
	}
	return e
}

// Active reports whether stems are tested against the envelope at all.
func (e Envelope) Active() bool {
	return e.ratio > 0
}

// Hard reports whether stems that cannot be made to fit are dropped.
func (e Envelope) Hard() bool {
	return e.ratio >= 1
}

// Ratio is the blend weight between unpruned and fitted lengths.
func (e Envelope) Ratio() float64 {
	return e.ratio
}

// Profile is the normalised crown width at height fraction h in [0, 1]:
// (h/peak)^powLow below the peak and ((1-h)/(1-peak))^powHigh above it.
// It is 0 outside [0, 1].
func (e Envelope) Profile(h float64) float64 {
	if h < 0 || h > 1 || math.IsNaN(h) {
		return 0
	}
	if h < e.peak {
		return math.Pow(h/e.peak, e.powLow)
	}
	if e.peak >= 1 {
		// degenerate upper piece collapses onto the peak
		return 1
	}
	return math.Pow((1-h)/(1-e.peak), e.powHigh)
}

// Bound is the maximum radial offset, as a fraction of tree scale, at h.
func (e Envelope) Bound(h float64) float64 {
	return e.width * e.Profile(h)
}

// HeightFraction maps a world height to the crown's normalised height for a
// tree of the given scale. The crown starts at scale*baseSize.
func (e Envelope) HeightFraction(z, scale float64) float64 {
	span := scale * (1 - e.baseSize)
	if span <= 0 {
		if z >= scale {
			return 1
		}
		return 0
	}
	return (z - scale*e.baseSize) / span
}

// Contains reports whether p lies within the envelope around the vertical
// axis through the origin.
func (e Envelope) Contains(p mgl64.Vec3, scale float64) bool {
	if scale <= 0 {
		return false
	}
	dist := math.Hypot(p[0], p[1])
	h := e.HeightFraction(p[2], scale)
	return dist/scale <= e.Bound(h)+Tolerance
}

// Blend mixes the unpruned and fitted lengths by the prune ratio.
func (e Envelope) Blend(unpruned, fitted float64) float64 {
	return unpruned*(1-e.ratio) + fitted*e.ratio
}

// ShapeRatio is the first-level length factor for the given silhouette at
// ratio, where ratio is 1 at the crown base and 0 at the top.
func (e Envelope) ShapeRatio(shape params.TreeShape, ratio float64) float64 {
	switch shape {
	case params.Spherical:
		return 0.2 + 0.8*math.Sin(math.Pi*ratio)
	case params.Hemispherical:
		return 0.2 + 0.8*math.Sin(0.5*math.Pi*ratio)
	case params.Cylindrical:
		return 1
	case params.TaperedCylindrical:
		return 0.5 + 0.5*ratio
	case params.Flame:
		if ratio <= 0.7 {
			return ratio / 0.7
		}
		return (1 - ratio) / 0.3
	case params.InverseConical:
		return 1 - 0.8*ratio
	case params.TendFlame:
		if ratio <= 0.7 {
			return 0.5 + 0.5*ratio/0.7
		}
		return 0.5 + 0.5*(1-ratio)/0.3
	case params.Custom:
		return e.Profile(1 - ratio)
	default:
		return 0.2 + 0.8*ratio
	}
}
