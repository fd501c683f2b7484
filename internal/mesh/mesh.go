// Package mesh turns a finished skeleton into triangle geometry.
package mesh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/friggog/tree-gen/internal/foliage"
	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/skeleton"
)

// namespace scopes descriptor ids.
var namespace = uuid.MustParse("6f1f0f3e-3c1a-5a43-9d6e-2b7c1e9f4a10")

// Options controls tessellation.
type Options struct {
	// Sides is the ring vertex count of the trunk. Each level below loses
	// two, down to three.
	Sides int `yaml:"sides" json:"sides"`
	// FlareRings adds rings inside every segment of the trunk and of stems
	// with a rounded or bulging taper.
	FlareRings int  `yaml:"flareRings" json:"flareRings"`
	Caps       bool `yaml:"caps" json:"caps"`
	Joins      bool `yaml:"joins" json:"joins"`
	// Workers bounds concurrent per-stem tessellation. It never changes the
	// output.
	Workers int `yaml:"workers" json:"workers"`
}

func DefaultOptions() Options {
	return Options{
		Sides:      12,
		FlareRings: 3,
		Joins:      true,
	}
}

func (o Options) normalized() Options {
	if o.Sides == 0 {
		o.Sides = DefaultOptions().Sides
	}
	if o.Sides < 3 {
		o.Sides = 3
	}
	if o.FlareRings < 0 {
		o.FlareRings = 0
	}
	return o
}

// Face is a triangle of vertex indices.
type Face [3]int

// StemRange locates the geometry of one stem inside a Descriptor.
type StemRange struct {
	StemID      int `json:"stemId"`
	Level       int `json:"level"`
	FirstVertex int `json:"firstVertex"`
	VertexCount int `json:"vertexCount"`
	FirstFace   int `json:"firstFace"`
	FaceCount   int `json:"faceCount"`
}

// Descriptor is the finished, immutable output of a generation run. UVs hold
// three entries per face, one per corner, so seams need no duplicated
// vertices.
type Descriptor struct {
	ID       uuid.UUID          `json:"id"`
	Name     string             `json:"name"`
	Seed     uint64             `json:"seed"`
	Vertices []mgl64.Vec3       `json:"vertices"`
	Faces    []Face             `json:"faces"`
	UVs      []mgl64.Vec2       `json:"uvs"`
	Stems    []StemRange        `json:"stems"`
	Leaves   []foliage.Instance `json:"leaves"`
	Blossoms []foliage.Instance `json:"blossoms"`
}

// ID is the stable identifier of the descriptor generated from p, seed and
// opts. Worker counts do not take part.
func ID(p *params.ParameterSet, seed uint64, opts Options) uuid.UUID {
	opts = opts.normalized()
	var b bytes.Buffer
	b.Write(p.Fingerprint())
	fmt.Fprintf(&b, "|seed=%d|sides=%d|flareRings=%d|caps=%t|joins=%t",
		seed, opts.Sides, opts.FlareRings, opts.Caps, opts.Joins)
	return uuid.NewSHA1(namespace, b.Bytes())
}

// Assemble tessellates every stem of tree and attaches the foliage. Stems are
// tessellated concurrently and merged in id order.
func Assemble(ctx context.Context, tree *skeleton.Tree, leaves foliage.Placement, opts Options) (*Descriptor, error) {
	if tree == nil {
		return nil, errors.New("mesh: nil tree")
	}
	opts = opts.normalized()
	stems := tree.Stems()
	parts := make([]part, len(stems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(opts.Workers, len(stems)))
	for i, s := range stems {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = tessellate(s, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("tessellate stems: %w", err)
	}

	d := &Descriptor{
		ID:       ID(tree.Params, tree.Seed, opts),
		Name:     tree.Params.Name,
		Seed:     tree.Seed,
		Stems:    make([]StemRange, 0, len(stems)),
		Leaves:   leaves.Leaves,
		Blossoms: leaves.Blossoms,
	}
	vertexTotal, faceTotal := 0, 0
	for _, pt := range parts {
		vertexTotal += len(pt.vertices)
		faceTotal += len(pt.faces)
	}
	d.Vertices = make([]mgl64.Vec3, 0, vertexTotal)
	d.Faces = make([]Face, 0, faceTotal)
	d.UVs = make([]mgl64.Vec2, 0, 3*faceTotal)

	for i, pt := range parts {
		offset := len(d.Vertices)
		d.Stems = append(d.Stems, StemRange{
			StemID:      stems[i].ID,
			Level:       stems[i].Level,
			FirstVertex: offset,
			VertexCount: len(pt.vertices),
			FirstFace:   len(d.Faces),
			FaceCount:   len(pt.faces),
		})
		d.Vertices = append(d.Vertices, pt.vertices...)
		for _, f := range pt.faces {
			d.Faces = append(d.Faces, Face{f[0] + offset, f[1] + offset, f[2] + offset})
		}
		d.UVs = append(d.UVs, pt.uvs...)
	}
	return d, nil
}

func workerCount(requested, jobs int) int {
	workers := requested
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return max(1, min(workers, jobs))
}
