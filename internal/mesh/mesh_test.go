package mesh

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/friggog/tree-gen/internal/foliage"
	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/skeleton"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func grow(t *testing.T, mutate func(p *params.ParameterSet)) *skeleton.Tree {
	t.Helper()
	p := params.Default()
	p.Branches = []int{1, 8, 4, 2}
	if mutate != nil {
		mutate(p)
	}
	tree, err := skeleton.Build(context.Background(), p, 99, skeleton.Options{})
	require.NoError(t, err)
	return tree
}

func assemble(t *testing.T, tree *skeleton.Tree, opts Options) *Descriptor {
	t.Helper()
	d, err := Assemble(context.Background(), tree, foliage.Place(tree), opts)
	require.NoError(t, err)
	return d
}

func single(p *params.ParameterSet) {
	p.Levels = 1
	p.CurveResolution[0] = 5
}

func TestAssembleProducesValidIndices(t *testing.T) {
	tree := grow(t, nil)
	d := assemble(t, tree, DefaultOptions())

	require.NotEmpty(t, d.Vertices)
	require.Len(t, d.UVs, 3*len(d.Faces))
	require.Len(t, d.Stems, tree.Len())
	for _, f := range d.Faces {
		for _, idx := range f {
			require.GreaterOrEqual(t, idx, 0)
			require.Less(t, idx, len(d.Vertices))
		}
	}
	for _, uv := range d.UVs {
		require.False(t, math.IsNaN(uv[0]) || math.IsNaN(uv[1]))
		require.GreaterOrEqual(t, uv[0], 0.0)
		require.LessOrEqual(t, uv[0], 1.0)
	}

	nextVertex, nextFace := 0, 0
	for i, r := range d.Stems {
		require.Equal(t, i, r.StemID)
		require.Equal(t, nextVertex, r.FirstVertex)
		require.Equal(t, nextFace, r.FirstFace)
		nextVertex += r.VertexCount
		nextFace += r.FaceCount
		for _, f := range d.Faces[r.FirstFace : r.FirstFace+r.FaceCount] {
			for _, idx := range f {
				require.GreaterOrEqual(t, idx, r.FirstVertex, "faces stay inside their stem")
				require.Less(t, idx, r.FirstVertex+r.VertexCount)
			}
		}
	}
	require.Equal(t, len(d.Vertices), nextVertex)
	require.Equal(t, len(d.Faces), nextFace)
	require.Equal(t, len(foliage.Place(tree).Leaves), len(d.Leaves))
}

func TestTubeCounts(t *testing.T) {
	tests := []struct {
		name      string
		taper     float64
		caps      bool
		wantVerts int
		wantFaces int
	}{
		{"open tube", 0.5, false, 6 * 8, 5 * 8 * 2},
		{"capped tube", 0.5, true, 6*8 + 2, 5*8*2 + 2*8},
		{"cone collapses to apex", 1, false, 5*8 + 1, 4*8*2 + 8},
		{"capped cone keeps apex", 1, true, 5*8 + 2, 4*8*2 + 8 + 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := grow(t, func(p *params.ParameterSet) {
				single(p)
				p.Taper[0] = tt.taper
			})
			d := assemble(t, tree, Options{Sides: 8, Caps: tt.caps, Joins: true})
			require.Len(t, d.Vertices, tt.wantVerts)
			require.Len(t, d.Faces, tt.wantFaces)
		})
	}
}

func TestConeTipIsSingleApex(t *testing.T) {
	tree := grow(t, single)
	d := assemble(t, tree, Options{Sides: 8})

	trunk := tree.Trunks[0]
	apex := d.Vertices[len(d.Vertices)-1]
	require.True(t, apex.ApproxEqualThreshold(trunk.End.Pos, 1e-9))
}

func TestFlareRingsAddTrunkRings(t *testing.T) {
	tree := grow(t, func(p *params.ParameterSet) {
		single(p)
		p.Taper[0] = 0.5
	})
	d := assemble(t, tree, Options{Sides: 8, FlareRings: 2})
	require.Len(t, d.Vertices, (5*3+1)*8)
}

func TestSidesShrinkPerLevel(t *testing.T) {
	require.Equal(t, 12, sidesFor(12, 0))
	require.Equal(t, 8, sidesFor(12, 2))
	require.Equal(t, 3, sidesFor(6, 3))
}

func TestChildCollarSitsOnParentSurface(t *testing.T) {
	tree := grow(t, func(p *params.ParameterSet) {
		p.Levels = 2
		p.Taper[1] = 0.5
	})
	opts := Options{Sides: 10, Joins: true}
	d := assemble(t, tree, opts)

	checked := 0
	for _, r := range d.Stems {
		s, _ := tree.Stem(r.StemID)
		if s.Level != 1 || s.Outward.Len() == 0 {
			continue
		}
		sides := sidesFor(opts.Sides, s.Level)
		axis := s.AnchorAxis.Normalize()
		collar := d.Vertices[r.FirstVertex+r.VertexCount-sides : r.FirstVertex+r.VertexCount]
		for _, v := range collar {
			rel := v.Sub(s.Anchor)
			radial := rel.Sub(axis.Mul(rel.Dot(axis)))
			require.InDelta(t, collarInset*s.RadiusLimit, radial.Len(), 1e-9)
		}
		checked++
	}
	require.Positive(t, checked)
}

func TestAssembleIndependentOfWorkers(t *testing.T) {
	tree := grow(t, nil)
	serial := assemble(t, tree, Options{Sides: 10, FlareRings: 2, Joins: true, Workers: 1})
	parallel := assemble(t, tree, Options{Sides: 10, FlareRings: 2, Joins: true, Workers: 16})
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Fatalf("descriptor depends on worker count (-serial +parallel):\n%s", diff)
	}
}

func TestDescriptorID(t *testing.T) {
	p := params.Default()
	opts := DefaultOptions()
	id := ID(p, 1, opts)

	require.Equal(t, id, ID(p.Clone(), 1, opts))
	require.NotEqual(t, id, ID(p, 2, opts))

	opts.Workers = 32
	require.Equal(t, id, ID(p, 1, opts), "workers do not change the id")

	opts.Caps = true
	require.NotEqual(t, id, ID(p, 1, opts))
}

func TestVAdvancesAlongStem(t *testing.T) {
	tree := grow(t, func(p *params.ParameterSet) {
		single(p)
		p.Taper[0] = 0.5
	})
	d := assemble(t, tree, Options{Sides: 6})
	prev := math.Inf(-1)
	for i := 0; i < len(d.Faces); i += 2 * 6 {
		v := d.UVs[3*i][1]
		require.Greater(t, v, prev)
		prev = v
	}
	trunk := tree.Trunks[0]
	last := d.UVs[len(d.UVs)-1][1]
	require.InDelta(t, trunk.Length/(2*math.Pi*trunk.Radius), last, 1e-9)
}

func TestAssembleNilTree(t *testing.T) {
	_, err := Assemble(context.Background(), nil, foliage.Placement{}, DefaultOptions())
	require.Error(t, err)
}
