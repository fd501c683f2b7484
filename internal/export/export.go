// Package export writes mesh descriptors as Wavefront OBJ or JSON.
package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/friggog/tree-gen/internal/foliage"
	"github.com/friggog/tree-gen/internal/mesh"
)

const (
	FormatOBJ  = "obj"
	FormatJSON = "json"
)

// OBJOptions controls optional OBJ content.
type OBJOptions struct {
	// Foliage appends one quad per leaf and blossom.
	Foliage bool
}

// leafUVs are shared by every foliage quad, in Quad corner order.
var leafUVs = [4]mgl64.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// WriteOBJ encodes d as OBJ. Every face corner references its own texture
// coordinate, so vt lines follow face order.
func WriteOBJ(w io.Writer, d *mesh.Descriptor, opts OBJOptions) error {
	if d == nil {
		return errors.New("export: nil descriptor")
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# tree-gen %s seed %d\n# id %s\n", d.Name, d.Seed, d.ID)
	fmt.Fprintf(bw, "o %s\n", objName(d.Name))

	for _, v := range d.Vertices {
		writeVec(bw, "v", v[:])
	}
	for _, uv := range d.UVs {
		writeVec(bw, "vt", uv[:])
	}
	for _, r := range d.Stems {
		fmt.Fprintf(bw, "g stem_%d\n", r.StemID)
		for i := r.FirstFace; i < r.FirstFace+r.FaceCount; i++ {
			f := d.Faces[i]
			t := 3*i + 1
			fmt.Fprintf(bw, "f %d/%d %d/%d %d/%d\n", f[0]+1, t, f[1]+1, t+1, f[2]+1, t+2)
		}
	}

	if opts.Foliage && len(d.Leaves)+len(d.Blossoms) > 0 {
		for _, uv := range leafUVs {
			writeVec(bw, "vt", uv[:])
		}
		firstUV := 3*len(d.Faces) + 1
		next := len(d.Vertices) + 1
		next = writeCards(bw, "leaves", d.Leaves, next, firstUV)
		writeCards(bw, "blossoms", d.Blossoms, next, firstUV)
	}
	return bw.Flush()
}

func writeCards(bw *bufio.Writer, group string, cards []foliage.Instance, next, firstUV int) int {
	if len(cards) == 0 {
		return next
	}
	fmt.Fprintf(bw, "g %s\n", group)
	for _, c := range cards {
		for _, corner := range c.Quad() {
			writeVec(bw, "v", corner[:])
		}
		fmt.Fprintf(bw, "f %d/%d %d/%d %d/%d %d/%d\n",
			next, firstUV, next+1, firstUV+1, next+2, firstUV+2, next+3, firstUV+3)
		next += 4
	}
	return next
}

func writeVec(bw *bufio.Writer, tag string, xs []float64) {
	bw.WriteString(tag)
	for _, x := range xs {
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	bw.WriteByte('\n')
}

func objName(name string) string {
	if name == "" {
		return "tree"
	}
	return name
}

// WriteJSON encodes d as indented JSON.
func WriteJSON(w io.Writer, d *mesh.Descriptor) error {
	if d == nil {
		return errors.New("export: nil descriptor")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	return nil
}

// Write encodes d in the named format.
func Write(w io.Writer, d *mesh.Descriptor, format string, opts OBJOptions) error {
	switch format {
	case FormatOBJ:
		return WriteOBJ(w, d, opts)
	case FormatJSON:
		return WriteJSON(w, d)
	default:
		return fmt.Errorf("export: unknown format %q", format)
	}
}

// FileName is the output name used for d in the given format.
func FileName(d *mesh.Descriptor, format string) string {
	return fmt.Sprintf("%s_%d.%s", objName(d.Name), d.Seed, format)
}

// SaveFile writes d into dir and returns the created path.
func SaveFile(dir string, d *mesh.Descriptor, format string, opts OBJOptions) (string, error) {
	if d == nil {
		return "", errors.New("export: nil descriptor")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, FileName(d, format))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(file, d, format, opts); err != nil {
		file.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
