package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TreeShape selects the silhouette profile used for first-level branch lengths.
type TreeShape int

const (
	Conical TreeShape = iota
	Spherical
	Hemispherical
	Cylindrical
	TaperedCylindrical
	Flame
	InverseConical
	TendFlame
	Custom
)

var shapeNames = [...]string{
	Conical:            "conical",
	Spherical:          "spherical",
	Hemispherical:      "hemispherical",
	Cylindrical:        "cylindrical",
	TaperedCylindrical: "tapered_cylindrical",
	Flame:              "flame",
	InverseConical:     "inverse_conical",
	TendFlame:          "tend_flame",
	Custom:             "custom",
}

func (s TreeShape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return "shape(" + strconv.Itoa(int(s)) + ")"
	}
	return shapeNames[s]
}

// Valid reports whether s names one of the nine known profiles.
func (s TreeShape) Valid() bool {
	return s >= Conical && s <= Custom
}

// ParseShape accepts a shape name (case and separator insensitive) or its
// numeric index.
func ParseShape(value string) (TreeShape, error) {
	trimmed := strings.TrimSpace(value)
	if n, err := strconv.Atoi(trimmed); err == nil {
		shape := TreeShape(n)
		if !shape.Valid() {
			return 0, fmt.Errorf("unknown tree shape %d", n)
		}
		return shape, nil
	}
	key := strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(trimmed))
	key = strings.ReplaceAll(key, "_", "")
	for i, name := range shapeNames {
		if strings.ReplaceAll(name, "_", "") == key {
			return TreeShape(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tree shape %q", value)
}

func (s TreeShape) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown tree shape %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *TreeShape) UnmarshalText(text []byte) error {
	shape, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = shape
	return nil
}

// UnmarshalJSON accepts either the shape name or its index.
func (s *TreeShape) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return fmt.Errorf("decode tree shape: %w", err)
		}
		return s.UnmarshalText([]byte(name))
	}
	return s.UnmarshalText(b)
}

func (s TreeShape) MarshalYAML() (any, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown tree shape %d", int(s))
	}
	return s.String(), nil
}

func (s *TreeShape) UnmarshalYAML(value *yaml.Node) error {
	return s.UnmarshalText([]byte(value.Value))
}

// ParameterSet describes one tree style. Per-level arrays are indexed by stem
// level (0 = trunk); lookups past the last entry reuse the last entry.
type ParameterSet struct {
	Name string `yaml:"name" json:"name"`

	Shape           TreeShape  `yaml:"shape" json:"shape"`
	Levels          int        `yaml:"levels" json:"levels"`
	Height          float64    `yaml:"height" json:"height"`
	HeightVariation float64    `yaml:"heightVariation" json:"heightVariation"`
	Ratio           float64    `yaml:"ratio" json:"ratio"`
	RatioPower      float64    `yaml:"ratioPower" json:"ratioPower"`
	Flare           float64    `yaml:"flare" json:"flare"`
	TrunkSplits     int        `yaml:"trunkSplits" json:"trunkSplits"`
	Tropism         [3]float64 `yaml:"tropism,flow" json:"tropism"`

	Branches            []int     `yaml:"branches,flow" json:"branches"`
	Length              []float64 `yaml:"length,flow" json:"length"`
	LengthVariation     []float64 `yaml:"lengthVariation,flow" json:"lengthVariation"`
	BaseSize            []float64 `yaml:"baseSize,flow" json:"baseSize"`
	Distribution        []float64 `yaml:"distribution,flow" json:"distribution"`
	Taper               []float64 `yaml:"taper,flow" json:"taper"`
	CurveResolution     []int     `yaml:"curveResolution,flow" json:"curveResolution"`
	Curve               []float64 `yaml:"curve,flow" json:"curve"`
	CurveVariation      []float64 `yaml:"curveVariation,flow" json:"curveVariation"`
	CurveBack           []float64 `yaml:"curveBack,flow" json:"curveBack"`
	BendVariation       []float64 `yaml:"bendVariation,flow" json:"bendVariation"`
	SegmentSplits       []float64 `yaml:"segmentSplits,flow" json:"segmentSplits"`
	SplitAngle          []float64 `yaml:"splitAngle,flow" json:"splitAngle"`
	SplitAngleVariation []float64 `yaml:"splitAngleVariation,flow" json:"splitAngleVariation"`
	DownAngle           []float64 `yaml:"downAngle,flow" json:"downAngle"`
	DownAngleVariation  []float64 `yaml:"downAngleVariation,flow" json:"downAngleVariation"`
	Rotation            []float64 `yaml:"rotation,flow" json:"rotation"`
	RotationVariation   []float64 `yaml:"rotationVariation,flow" json:"rotationVariation"`
	RadiusModifier      []float64 `yaml:"radiusModifier,flow" json:"radiusModifier"`

	PruneRatio     float64 `yaml:"pruneRatio" json:"pruneRatio"`
	PruneWidth     float64 `yaml:"pruneWidth" json:"pruneWidth"`
	PruneWidthPeak float64 `yaml:"pruneWidthPeak" json:"pruneWidthPeak"`
	PrunePowerLow  float64 `yaml:"prunePowerLow" json:"prunePowerLow"`
	PrunePowerHigh float64 `yaml:"prunePowerHigh" json:"prunePowerHigh"`

	LeafCount    int     `yaml:"leafCount" json:"leafCount"`
	LeafShape    int     `yaml:"leafShape" json:"leafShape"`
	LeafScale    float64 `yaml:"leafScale" json:"leafScale"`
	LeafWidth    float64 `yaml:"leafWidth" json:"leafWidth"`
	LeafBend     float64 `yaml:"leafBend" json:"leafBend"`
	BlossomShape int     `yaml:"blossomShape" json:"blossomShape"`
	BlossomRate  float64 `yaml:"blossomRate" json:"blossomRate"`
	BlossomScale float64 `yaml:"blossomScale" json:"blossomScale"`
}

// At returns values[level], reusing the last entry for deeper levels.
func At[T any](values []T, level int) T {
	var zero T
	if len(values) == 0 {
		return zero
	}
	if level < 0 {
		level = 0
	}
	if level >= len(values) {
		level = len(values) - 1
	}
	return values[level]
}

// TrunkCount is the number of independent trunks; zero means one.
func (p *ParameterSet) TrunkCount() int {
	n := At(p.Branches, 0)
	if n < 0 {
		n = -n
	}
	if n < 1 {
		return 1
	}
	return n
}

// Clone returns a deep copy.
func (p *ParameterSet) Clone() *ParameterSet {
	out := *p
	out.Branches = append([]int(nil), p.Branches...)
	out.CurveResolution = append([]int(nil), p.CurveResolution...)
	for _, field := range out.levelFloats() {
		*field.values = append([]float64(nil), (*field.values)...)
	}
	return &out
}

// Fingerprint is a stable byte encoding of every field, used to derive cache
// keys and descriptor ids.
func (p *ParameterSet) Fingerprint() []byte {
	data, err := json.Marshal(p)
	if err != nil {
		// Only reachable for an invalid shape, which Validate rejects.
		return []byte(fmt.Sprintf("%+v", *p))
	}
	return data
}

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError identifies the offending parameter field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Field + " " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type levelFloat struct {
	name   string
	values *[]float64
}

func (p *ParameterSet) levelFloats() []levelFloat {
	return []levelFloat{
		{"length", &p.Length},
		{"lengthVariation", &p.LengthVariation},
		{"baseSize", &p.BaseSize},
		{"distribution", &p.Distribution},
		{"taper", &p.Taper},
		{"curve", &p.Curve},
		{"curveVariation", &p.CurveVariation},
		{"curveBack", &p.CurveBack},
		{"bendVariation", &p.BendVariation},
		{"segmentSplits", &p.SegmentSplits},
		{"splitAngle", &p.SplitAngle},
		{"splitAngleVariation", &p.SplitAngleVariation},
		{"downAngle", &p.DownAngle},
		{"downAngleVariation", &p.DownAngleVariation},
		{"rotation", &p.Rotation},
		{"rotationVariation", &p.RotationVariation},
		{"radiusModifier", &p.RadiusModifier},
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks the whole parameter set before any generation work starts.
// The returned error is a *ConfigurationError naming the first bad field.
func (p *ParameterSet) Validate() error {
	if p.Levels <= 0 {
		return invalid("levels", "must be positive")
	}
	if !p.Shape.Valid() {
		return invalid("shape", "must be one of conical..custom, got %d", int(p.Shape))
	}

	scalars := []struct {
		name  string
		value float64
	}{
		{"height", p.Height},
		{"heightVariation", p.HeightVariation},
		{"ratio", p.Ratio},
		{"ratioPower", p.RatioPower},
		{"flare", p.Flare},
		{"tropism[0]", p.Tropism[0]},
		{"tropism[1]", p.Tropism[1]},
		{"tropism[2]", p.Tropism[2]},
		{"pruneRatio", p.PruneRatio},
		{"pruneWidth", p.PruneWidth},
		{"pruneWidthPeak", p.PruneWidthPeak},
		{"prunePowerLow", p.PrunePowerLow},
		{"prunePowerHigh", p.PrunePowerHigh},
		{"leafScale", p.LeafScale},
		{"leafWidth", p.LeafWidth},
		{"leafBend", p.LeafBend},
		{"blossomRate", p.BlossomRate},
		{"blossomScale", p.BlossomScale},
	}
	for _, s := range scalars {
		if !finite(s.value) {
			return invalid(s.name, "must be finite")
		}
	}

	if p.Height <= 0 {
		return invalid("height", "must be positive")
	}
	if p.Ratio <= 0 {
		return invalid("ratio", "must be positive")
	}

	if len(p.Branches) < p.Levels {
		return invalid("branches", "must have at least %d entries, got %d", p.Levels, len(p.Branches))
	}
	if len(p.CurveResolution) < p.Levels {
		return invalid("curveResolution", "must have at least %d entries, got %d", p.Levels, len(p.CurveResolution))
	}
	for i, res := range p.CurveResolution {
		if res < 1 {
			return invalid(fmt.Sprintf("curveResolution[%d]", i), "must be at least 1")
		}
	}
	for _, field := range p.levelFloats() {
		values := *field.values
		if len(values) < p.Levels {
			return invalid(field.name, "must have at least %d entries, got %d", p.Levels, len(values))
		}
		for i, v := range values {
			if !finite(v) {
				return invalid(fmt.Sprintf("%s[%d]", field.name, i), "must be finite")
			}
		}
	}
	for i, v := range p.BaseSize {
		if v < 0 || v > 1 {
			return invalid(fmt.Sprintf("baseSize[%d]", i), "must be within [0, 1]")
		}
	}
	for i, v := range p.SegmentSplits {
		if v < 0 {
			return invalid(fmt.Sprintf("segmentSplits[%d]", i), "cannot be negative")
		}
	}

	if p.PruneRatio < 0 || p.PruneRatio > 1 {
		return invalid("pruneRatio", "must be within [0, 1]")
	}
	if p.PruneWidthPeak < 0 || p.PruneWidthPeak > 1 {
		return invalid("pruneWidthPeak", "must be within [0, 1]")
	}
	if p.PruneWidth < 0 {
		return invalid("pruneWidth", "cannot be negative")
	}
	if p.Shape == Custom && p.PruneWidth <= 0 {
		return invalid("pruneWidth", "must be positive for the custom shape")
	}
	if p.BlossomRate < 0 || p.BlossomRate > 1 {
		return invalid("blossomRate", "must be within [0, 1]")
	}
	if p.LeafScale < 0 || p.BlossomScale < 0 {
		return invalid("leafScale", "leaf and blossom scales cannot be negative")
	}
	return nil
}

// Decode parses a parameter set from YAML or JSON. JSON is chosen when the
// payload starts with '{'.
func Decode(data []byte) (*ParameterSet, error) {
	var p ParameterSet
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse parameters json: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse parameters yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validate parameters: %w", err)
	}
	return &p, nil
}

// LoadFile reads a custom parameter set from disk.
func LoadFile(path string) (*ParameterSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}
	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// Encode renders the set in the same layout the preset catalog uses.
func Encode(p *ParameterSet) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	return data, nil
}
