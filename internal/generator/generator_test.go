package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/friggog/tree-gen/internal/mesh"
	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func small() *params.ParameterSet {
	p := params.Default()
	p.Branches = []int{1, 6, 3, 2}
	return p
}

func TestGenerateDeterministic(t *testing.T) {
	opts := Options{Mesh: mesh.DefaultOptions()}
	first, err := Generate(context.Background(), small(), 42, opts)
	require.NoError(t, err)

	opts.Workers = 1
	opts.Mesh.Workers = 1
	second, err := Generate(context.Background(), small(), 42, opts)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("same request produced different descriptors (-first +second):\n%s", diff)
	}
	require.Equal(t, mesh.ID(small(), 42, opts.Mesh), first.ID)
	require.Equal(t, uint64(42), first.Seed)
	require.Equal(t, "quaking_aspen", first.Name)
}

func TestGenerateWithoutVariationIgnoresSeed(t *testing.T) {
	p := small()
	p.Levels = 3
	p.HeightVariation = 0
	p.TrunkSplits = 0
	p.BlossomRate = 0
	for _, values := range [][]float64{
		p.LengthVariation, p.CurveVariation, p.BendVariation, p.SegmentSplits,
		p.SplitAngleVariation, p.DownAngleVariation, p.RotationVariation,
	} {
		for i := range values {
			values[i] = 0
		}
	}

	opts := Options{Mesh: mesh.DefaultOptions()}
	a, err := Generate(context.Background(), p, 1, opts)
	require.NoError(t, err)
	b, err := Generate(context.Background(), p, 2, opts)
	require.NoError(t, err)

	require.NotEmpty(t, a.Vertices)
	require.NotEqual(t, a.ID, b.ID)
	// ID and Seed name the request, so they differ even when the geometry does not.
	if diff := cmp.Diff(a, b, cmpopts.IgnoreFields(mesh.Descriptor{}, "ID", "Seed")); diff != "" {
		t.Fatalf("descriptor differs between seeds (-1 +2):\n%s", diff)
	}
}

func TestGenerateRejectsInvalidParams(t *testing.T) {
	p := small()
	p.Levels = 0
	_, err := Generate(context.Background(), p, 1, Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, params.ErrConfiguration), "got %v", err)

	_, err = Generate(context.Background(), nil, 1, Options{})
	require.ErrorIs(t, err, params.ErrConfiguration)
}

func TestGeneratorServesFromCache(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cache := store.NewMemory(0)
	g := New(Options{Mesh: mesh.DefaultOptions()}, cache, zap.New(core))

	fresh, err := g.Generate(context.Background(), small(), 7)
	require.NoError(t, err)
	require.False(t, fresh.Cached)
	require.NotNil(t, fresh.Tree)

	n, err := cache.Len()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	hit, err := g.Generate(context.Background(), small(), 7)
	require.NoError(t, err)
	require.True(t, hit.Cached)
	require.Nil(t, hit.Tree)
	if diff := cmp.Diff(fresh.Descriptor, hit.Descriptor); diff != "" {
		t.Fatalf("cached descriptor differs (-fresh +cached):\n%s", diff)
	}

	require.Equal(t, 1, logs.FilterMessage("tree generated").Len())
	require.Equal(t, 1, logs.FilterMessage("mesh served from cache").Len())

	other, err := g.Generate(context.Background(), small(), 8)
	require.NoError(t, err)
	require.False(t, other.Cached)
}

func TestGeneratorLogsMilestones(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	g := New(Options{}, nil, zap.New(core))
	res, err := g.Generate(context.Background(), small(), 3)
	require.NoError(t, err)

	built := logs.FilterMessage("skeleton built").All()
	require.Len(t, built, 1)
	require.Equal(t, int64(res.Tree.Len()), built[0].ContextMap()["stems"])

	done := logs.FilterMessage("tree generated").All()
	require.Len(t, done, 1)
	require.Equal(t, int64(len(res.Descriptor.Faces)), done[0].ContextMap()["faces"])
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Generate(ctx, small(), 1, Options{})
	require.ErrorIs(t, err, context.Canceled)
}
