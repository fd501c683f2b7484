// Package generator runs the full pipeline from a parameter set to a mesh
// descriptor: validate, build the skeleton, place foliage, assemble.
package generator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/friggog/tree-gen/internal/foliage"
	"github.com/friggog/tree-gen/internal/logging"
	"github.com/friggog/tree-gen/internal/mesh"
	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/skeleton"
	"github.com/friggog/tree-gen/internal/store"
)

type Options struct {
	// Workers bounds concurrently built trunk subtrees.
	Workers int
	Mesh    mesh.Options
}

// Result is the outcome of one Generate call. Tree is nil when the
// descriptor came from the cache.
type Result struct {
	Descriptor *mesh.Descriptor
	Tree       *skeleton.Tree
	Cached     bool
	Elapsed    time.Duration
}

// Generator runs the pipeline and optionally caches descriptors.
type Generator struct {
	opts   Options
	store  store.MeshStore
	logger *zap.Logger
}

// New returns a Generator. st and logger may be nil.
func New(opts Options, st store.MeshStore, logger *zap.Logger) *Generator {
	return &Generator{
		opts:   opts,
		store:  st,
		logger: logging.OrNop(logger),
	}
}

// Generate runs the pipeline once, without a cache or logger.
func Generate(ctx context.Context, p *params.ParameterSet, seed uint64, opts Options) (*mesh.Descriptor, error) {
	res, err := New(opts, nil, nil).Generate(ctx, p, seed)
	if err != nil {
		return nil, err
	}
	return res.Descriptor, nil
}

// Generate produces the descriptor for p and seed, serving it from the store
// when an identical request was generated before.
func (g *Generator) Generate(ctx context.Context, p *params.ParameterSet, seed uint64) (*Result, error) {
	start := time.Now()
	if p == nil {
		return nil, fmt.Errorf("generate: %w", &params.ConfigurationError{Field: "params", Reason: "must be set"})
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	id := mesh.ID(p, seed, g.opts.Mesh)
	log := g.logger.With(zap.String("tree", p.Name), zap.Uint64("seed", seed), zap.Stringer("id", id))

	if g.store != nil {
		d, ok, err := g.store.Load(id)
		switch {
		case err != nil:
			log.Warn("mesh cache lookup failed", zap.Error(err))
		case ok:
			log.Debug("mesh served from cache")
			return &Result{Descriptor: d, Cached: true, Elapsed: time.Since(start)}, nil
		}
	}

	tree, err := skeleton.Build(ctx, p, seed, skeleton.Options{Workers: g.opts.Workers})
	if err != nil {
		return nil, fmt.Errorf("build skeleton: %w", err)
	}
	built := time.Now()
	log.Debug("skeleton built",
		zap.Int("stems", tree.Len()),
		zap.Ints("stemsByLevel", tree.CountByLevel()),
		zap.Int("splits", tree.SplitCount()),
		zap.Duration("took", built.Sub(start)),
	)

	placement := foliage.Place(tree)
	log.Debug("foliage placed",
		zap.Int("leaves", len(placement.Leaves)),
		zap.Int("blossoms", len(placement.Blossoms)),
	)

	d, err := mesh.Assemble(ctx, tree, placement, g.opts.Mesh)
	if err != nil {
		return nil, fmt.Errorf("assemble mesh: %w", err)
	}
	elapsed := time.Since(start)
	log.Info("tree generated",
		zap.Int("stems", tree.Len()),
		zap.Int("vertices", len(d.Vertices)),
		zap.Int("faces", len(d.Faces)),
		zap.Int("leaves", len(d.Leaves)),
		zap.Int("blossoms", len(d.Blossoms)),
		zap.Duration("assemble", time.Since(built)),
		zap.Duration("took", elapsed),
	)

	if g.store != nil {
		if err := g.store.Save(d); err != nil {
			log.Warn("mesh cache save failed", zap.Error(err))
		}
	}
	return &Result{Descriptor: d, Tree: tree, Elapsed: elapsed}, nil
}
