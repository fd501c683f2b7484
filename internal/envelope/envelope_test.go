package envelope

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"github.com/friggog/tree-gen/internal/params"
)

func testParams() *params.ParameterSet {
	p := params.Default()
	p.PruneRatio = 0.5
	p.PruneWidth = 0.6
	p.PruneWidthPeak = 0.4
	p.PrunePowerLow = 0.5
	p.PrunePowerHigh = 2
	p.BaseSize[0] = 0.2
	return p
}

func TestProfileShape(t *testing.T) {
	e := New(testParams())

	require.InDelta(t, 1.0, e.Profile(0.4), 1e-12, "profile peaks at width peak")
	require.InDelta(t, 0.0, e.Profile(0), 1e-12)
	require.InDelta(t, 0.0, e.Profile(1), 1e-12)
	require.InDelta(t, math.Pow(0.5, 0.5), e.Profile(0.2), 1e-12)
	require.InDelta(t, math.Pow(0.5, 2), e.Profile(0.7), 1e-12)
	require.Equal(t, 0.0, e.Profile(-0.1))
	require.Equal(t, 0.0, e.Profile(1.1))
	require.InDelta(t, 0.6*math.Pow(0.5, 2), e.Bound(0.7), 1e-12)
}

func TestProfileDegeneratePeak(t *testing.T) {
	tests := []struct {
		name string
		peak float64
		h    float64
		want float64
	}{
		{"peak zero at base", 0, 0, 1},
		{"peak zero mid", 0, 0.5, math.Pow(0.5, 2)},
		{"peak one at top", 1, 1, 1},
		{"peak one mid", 1, 0.25, math.Pow(0.25, 0.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			p.PruneWidthPeak = tt.peak
			got := New(p).Profile(tt.h)
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Fatalf("profile must stay finite, got %v", got)
			}
			require.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCustomShapeForcesHardEnvelope(t *testing.T) {
	p := testParams()
	p.PruneRatio = 0
	require.False(t, New(p).Active())

	p.Shape = params.Custom
	e := New(p)
	require.True(t, e.Active())
	require.True(t, e.Hard())
	require.Equal(t, 1.0, e.Ratio())
}

func TestBlend(t *testing.T) {
	e := New(testParams())
	require.InDelta(t, 7.5, e.Blend(10, 5), 1e-12)
}

func TestContains(t *testing.T) {
	e := New(testParams())
	scale := 10.0
	// crown base at z=2, crown spans 8 units; peak at z=2+0.4*8=5.2
	require.InDelta(t, 0.4, e.HeightFraction(5.2, scale), 1e-12)
	require.True(t, e.Contains(mgl64.Vec3{5.9, 0, 5.2}, scale))
	require.False(t, e.Contains(mgl64.Vec3{6.1, 0, 5.2}, scale))
	require.True(t, e.Contains(mgl64.Vec3{0, 0, 10}, scale), "axis point at top is inside")
	require.False(t, e.Contains(mgl64.Vec3{0.1, 0, 10.5}, scale), "above the crown is outside")
	require.False(t, e.Contains(mgl64.Vec3{0, 0, 1}, 0))
}

func TestShapeRatios(t *testing.T) {
	e := New(testParams())
	tests := []struct {
		shape params.TreeShape
		ratio float64
		want  float64
	}{
		{params.Conical, 0.5, 0.6},
		{params.Spherical, 0.5, 1.0},
		{params.Hemispherical, 1, 1.0},
		{params.Cylindrical, 0.3, 1.0},
		{params.TaperedCylindrical, 0.5, 0.75},
		{params.Flame, 0.7, 1.0},
		{params.Flame, 0.85, 0.5},
		{params.InverseConical, 1, 0.2},
		{params.TendFlame, 0.7, 1.0},
		{params.Custom, 0.6, 1.0},
	}
	for _, tt := range tests {
		require.InDelta(t, tt.want, e.ShapeRatio(tt.shape, tt.ratio), 1e-12, "%v at %v", tt.shape, tt.ratio)
	}
}
