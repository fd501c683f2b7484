package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/friggog/tree-gen/internal/mesh"
	"github.com/friggog/tree-gen/internal/params"
)

// Duration wraps time.Duration so configuration files can use strings such as
// "150ms" while numeric nanosecond values keep working.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// MarshalYAML writes the canonical string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds everything the treegen binary and service need.
type Config struct {
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Mesh       MeshConfig       `yaml:"mesh" json:"mesh"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

type GenerationConfig struct {
	Preset     string   `yaml:"preset" json:"preset"`
	ParamsFile string   `yaml:"paramsFile,omitempty" json:"paramsFile,omitempty"` // overrides preset
	Seed       uint64   `yaml:"seed" json:"seed"`
	Workers    int      `yaml:"workers" json:"workers"` // trunk subtrees built concurrently, 0 = GOMAXPROCS
	Timeout    Duration `yaml:"timeout" json:"timeout"`
}

type MeshConfig struct {
	Sides      int  `yaml:"sides" json:"sides"`
	FlareRings int  `yaml:"flareRings" json:"flareRings"`
	Caps       bool `yaml:"caps" json:"caps"`
	Joins      bool `yaml:"joins" json:"joins"`
	Workers    int  `yaml:"workers" json:"workers"`
}

type OutputConfig struct {
	Directory   string `yaml:"directory" json:"directory"`
	Format      string `yaml:"format" json:"format"` // "obj" or "json"
	Leaves      bool   `yaml:"leaves" json:"leaves"` // write leaf cards into OBJ output
	Preview     bool   `yaml:"preview" json:"preview"`
	PreviewSize int    `yaml:"previewSize" json:"previewSize"`
}

type CacheConfig struct {
	Driver     string `yaml:"driver" json:"driver"` // "memory", "sqlite" or "none"
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	MaxEntries int    `yaml:"maxEntries" json:"maxEntries"` // memory driver only, 0 = unbounded
}

type ServerConfig struct {
	Listen          string   `yaml:"listen" json:"listen"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	MaxConcurrent   int      `yaml:"maxConcurrent" json:"maxConcurrent"` // simultaneous generations
}

type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development" json:"development"`
}

// MeshOptions converts the mesh section into assembler options.
func (c *Config) MeshOptions() mesh.Options {
	return mesh.Options{
		Sides:      c.Mesh.Sides,
		FlareRings: c.Mesh.FlareRings,
		Caps:       c.Mesh.Caps,
		Joins:      c.Mesh.Joins,
		Workers:    c.Mesh.Workers,
	}
}

// Default returns a configuration that generates the default preset with no
// prior setup.
func Default() *Config {
	opts := mesh.DefaultOptions()
	return &Config{
		Generation: GenerationConfig{
			Preset:  "quaking_aspen",
			Seed:    1,
			Timeout: Duration(time.Minute),
		},
		Mesh: MeshConfig{
			Sides:      opts.Sides,
			FlareRings: opts.FlareRings,
			Caps:       opts.Caps,
			Joins:      opts.Joins,
		},
		Output: OutputConfig{
			Directory:   "out",
			Format:      "obj",
			Leaves:      true,
			Preview:     true,
			PreviewSize: 512,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			MaxEntries: 64,
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(2 * time.Minute),
			ShutdownTimeout: Duration(5 * time.Second),
			MaxConcurrent:   4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML or JSON file, chosen by extension. An
// empty path returns defaults. Fields missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Generation.Preset == "" && c.Generation.ParamsFile == "" {
		return errors.New("generation.preset or generation.paramsFile must be set")
	}
	if c.Generation.ParamsFile == "" {
		if _, err := params.Preset(c.Generation.Preset); err != nil {
			return fmt.Errorf("generation.preset %q is not a known preset", c.Generation.Preset)
		}
	}
	if c.Generation.Workers < 0 {
		return errors.New("generation.workers cannot be negative")
	}
	if c.Generation.Timeout < 0 {
		return errors.New("generation.timeout cannot be negative")
	}
	if c.Mesh.Sides < 3 {
		return errors.New("mesh.sides must be at least 3")
	}
	if c.Mesh.FlareRings < 0 {
		return errors.New("mesh.flareRings cannot be negative")
	}
	if c.Mesh.Workers < 0 {
		return errors.New("mesh.workers cannot be negative")
	}
	switch c.Output.Format {
	case "obj", "json":
	default:
		return errors.New("output.format must be one of obj, json")
	}
	if c.Output.Directory == "" {
		return errors.New("output.directory must be set")
	}
	if c.Output.Preview && c.Output.PreviewSize <= 0 {
		return errors.New("output.previewSize must be positive")
	}
	switch c.Cache.Driver {
	case "memory", "none":
	case "sqlite":
		if c.Cache.Path == "" {
			return errors.New("cache.path must be set for the sqlite driver")
		}
	default:
		return errors.New("cache.driver must be one of memory, sqlite, none")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache.maxEntries cannot be negative")
	}
	if c.Server.Listen == "" {
		return errors.New("server.listen must be set")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdownTimeout must be positive")
	}
	if c.Server.MaxConcurrent <= 0 {
		return errors.New("server.maxConcurrent must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level %q is invalid", c.Logging.Level)
	}
	return nil
}

// WriteDefault writes the default configuration as YAML to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
