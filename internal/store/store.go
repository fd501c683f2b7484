// Package store caches finished mesh descriptors by id.
package store

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/friggog/tree-gen/internal/config"
	"github.com/friggog/tree-gen/internal/mesh"
)

// MeshStore holds descriptors keyed by their id.
type MeshStore interface {
	Load(id uuid.UUID) (*mesh.Descriptor, bool, error)
	Save(d *mesh.Descriptor) error
	Delete(id uuid.UUID) error
	ForEach(fn func(d *mesh.Descriptor) bool) error
	Len() (int, error)
	Close() error
}

// Open builds the store selected by cfg. It returns nil when caching is
// disabled.
func Open(cfg config.CacheConfig) (MeshStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.MaxEntries), nil
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

func clone(d *mesh.Descriptor) *mesh.Descriptor {
	dup := *d
	dup.Vertices = slices.Clone(d.Vertices)
	dup.Faces = slices.Clone(d.Faces)
	dup.UVs = slices.Clone(d.UVs)
	dup.Stems = slices.Clone(d.Stems)
	dup.Leaves = slices.Clone(d.Leaves)
	dup.Blossoms = slices.Clone(d.Blossoms)
	return &dup
}
