package preview

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"github.com/friggog/tree-gen/internal/generator"
	"github.com/friggog/tree-gen/internal/mesh"
	"github.com/friggog/tree-gen/internal/params"
)

func tree(t *testing.T) *mesh.Descriptor {
	t.Helper()
	p := params.Default()
	p.Branches = []int{1, 6, 3, 2}
	d, err := generator.Generate(context.Background(), p, 11, generator.Options{Mesh: mesh.Options{Sides: 6}})
	require.NoError(t, err)
	return d
}

func TestRenderDrawsTree(t *testing.T) {
	dc, err := Render(tree(t), Options{Size: 128})
	require.NoError(t, err)
	defer dc.Close()

	img := dc.Image()
	require.Equal(t, 128, img.Bounds().Dx())
	require.Equal(t, 128, img.Bounds().Dy())

	// The margin keeps the corner clear of geometry.
	bg := img.At(0, 0)
	painted := 0
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			if img.At(x, y) != bg {
				painted++
			}
		}
	}
	require.Greater(t, painted, 128*128/100)
}

func TestEncodeWritesPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tree(t), Options{Size: 64, Azimuth: 45}))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 64, img.Bounds().Dx())
}

func TestSaveCreatesDirectory(t *testing.T) {
	d := tree(t)
	dir := filepath.Join(t.TempDir(), "previews")
	path, err := Save(d, dir, Options{Size: 32})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "quaking_aspen_11.png"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	require.NoError(t, err)
}

func TestRenderRejectsEmptyInput(t *testing.T) {
	_, err := Render(nil, Options{Size: 16})
	require.Error(t, err)
	_, err = Render(&mesh.Descriptor{}, Options{Size: 16})
	require.ErrorContains(t, err, "no geometry")
	_, err = Render(tree(t), Options{})
	require.ErrorContains(t, err, "invalid size")
}

func TestShadeStaysInRange(t *testing.T) {
	flat := polygon{n: 3, points: [4]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}}
	require.InDelta(t, previewAmbientLight+(1-previewAmbientLight)*lightDir.Z(), shade(flat), 1e-12)

	degenerate := polygon{n: 3}
	require.Equal(t, previewAmbientLight, shade(degenerate))
}
