// Package preview renders a flat-shaded orthographic PNG of a generated
// tree.
package preview

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gogpu/gg"

	"github.com/friggog/tree-gen/internal/mesh"
)

const (
	previewMargin       = 0.05
	previewAmbientLight = 0.35
)

var (
	background = gg.RGB(0.04, 0.04, 0.07)
	barkColor  = [3]float64{0.42, 0.3, 0.2}
	leafColor  = [3]float64{0.3, 0.55, 0.22}
	bloomColor = [3]float64{0.95, 0.78, 0.85}
	lightDir   = mgl64.Vec3{-0.4, -0.6, 0.7}.Normalize()
)

// Options controls the camera.
type Options struct {
	Size int
	// Azimuth rotates the tree about the vertical axis, in degrees, before
	// projecting onto the x/z plane.
	Azimuth float64
}

type polygon struct {
	points [4]mgl64.Vec3
	n      int
	depth  float64
	color  [3]float64
}

// Render draws d into a new context. The caller closes the context.
func Render(d *mesh.Descriptor, opts Options) (*gg.Context, error) {
	if d == nil {
		return nil, errors.New("preview: nil descriptor")
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("preview: invalid size %d", opts.Size)
	}
	polys := collectPolygons(d, opts.Azimuth)
	if len(polys) == 0 {
		return nil, errors.New("preview: descriptor has no geometry")
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for _, p := range polys {
		for _, v := range p.points[:p.n] {
			minX, maxX = math.Min(minX, v.X()), math.Max(maxX, v.X())
			minZ, maxZ = math.Min(minZ, v.Z()), math.Max(maxZ, v.Z())
		}
	}
	size := float64(opts.Size)
	usable := size * (1 - 2*previewMargin)
	scale := usable / math.Max(math.Max(maxX-minX, maxZ-minZ), 1e-9)
	offsetX := (size - (maxX-minX)*scale) / 2
	offsetY := (size - (maxZ-minZ)*scale) / 2
	project := func(v mgl64.Vec3) (float64, float64) {
		return offsetX + (v.X()-minX)*scale, size - offsetY - (v.Z()-minZ)*scale
	}

	// Painter's order: farthest first.
	sort.SliceStable(polys, func(i, j int) bool { return polys[i].depth > polys[j].depth })

	dc := gg.NewContext(opts.Size, opts.Size)
	dc.ClearWithColor(background)
	for _, p := range polys {
		light := shade(p)
		dc.SetRGB(p.color[0]*light, p.color[1]*light, p.color[2]*light)
		x, y := project(p.points[0])
		dc.MoveTo(x, y)
		for _, v := range p.points[1:p.n] {
			x, y = project(v)
			dc.LineTo(x, y)
		}
		dc.ClosePath()
		if err := dc.Fill(); err != nil {
			dc.Close()
			return nil, fmt.Errorf("preview: fill: %w", err)
		}
	}
	return dc, nil
}

// collectPolygons rotates every bark triangle and foliage card into view
// space, where y is depth.
func collectPolygons(d *mesh.Descriptor, azimuth float64) []polygon {
	rot := mgl64.Rotate3DZ(mgl64.DegToRad(-azimuth))
	polys := make([]polygon, 0, len(d.Faces)+len(d.Leaves)+len(d.Blossoms))
	for _, f := range d.Faces {
		p := polygon{n: 3, color: barkColor}
		for k, idx := range f {
			p.points[k] = rot.Mul3x1(d.Vertices[idx])
		}
		p.depth = (p.points[0].Y() + p.points[1].Y() + p.points[2].Y()) / 3
		polys = append(polys, p)
	}
	add := func(quad [4]mgl64.Vec3, col [3]float64) {
		p := polygon{n: 4, color: col}
		for k, v := range quad {
			p.points[k] = rot.Mul3x1(v)
			p.depth += p.points[k].Y() / 4
		}
		polys = append(polys, p)
	}
	for _, leaf := range d.Leaves {
		add(leaf.Quad(), leafColor)
	}
	for _, b := range d.Blossoms {
		add(b.Quad(), bloomColor)
	}
	return polys
}

// shade is a two-sided Lambert term over the ambient floor.
func shade(p polygon) float64 {
	n := p.points[1].Sub(p.points[0]).Cross(p.points[2].Sub(p.points[0]))
	if n.Len() == 0 {
		return previewAmbientLight
	}
	diffuse := math.Abs(n.Normalize().Dot(lightDir))
	return previewAmbientLight + (1-previewAmbientLight)*diffuse
}

// Encode renders d and writes it as PNG.
func Encode(w io.Writer, d *mesh.Descriptor, opts Options) error {
	dc, err := Render(d, opts)
	if err != nil {
		return err
	}
	defer dc.Close()
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

// Save renders d into outputDir and returns the PNG path.
func Save(d *mesh.Descriptor, outputDir string, opts Options) (string, error) {
	dc, err := Render(d, opts)
	if err != nil {
		return "", err
	}
	defer dc.Close()

	if err := ensurePreviewDir(outputDir); err != nil {
		return "", err
	}
	name := d.Name
	if name == "" {
		name = "tree"
	}
	path := filepath.Join(outputDir, fmt.Sprintf("%s_%d.png", name, d.Seed))
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("save preview: %w", err)
	}
	return path, nil
}

func ensurePreviewDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preview directory: %w", err)
	}
	return nil
}
