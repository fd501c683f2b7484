package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should be valid: %v", err)
	}
}

func TestValidateDetectsInvalidConfigurations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "no parameter source",
			mutate: func(cfg *Config) {
				cfg.Generation.Preset = ""
			},
			wantErr: "generation.preset or generation.paramsFile must be set",
		},
		{
			name: "unknown preset",
			mutate: func(cfg *Config) {
				cfg.Generation.Preset = "baobab"
			},
			wantErr: `generation.preset "baobab" is not a known preset`,
		},
		{
			name: "negative generation workers",
			mutate: func(cfg *Config) {
				cfg.Generation.Workers = -1
			},
			wantErr: "generation.workers cannot be negative",
		},
		{
			name: "too few sides",
			mutate: func(cfg *Config) {
				cfg.Mesh.Sides = 2
			},
			wantErr: "mesh.sides must be at least 3",
		},
		{
			name: "negative flare rings",
			mutate: func(cfg *Config) {
				cfg.Mesh.FlareRings = -1
			},
			wantErr: "mesh.flareRings cannot be negative",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.Output.Format = "fbx"
			},
			wantErr: "output.format must be one of obj, json",
		},
		{
			name: "preview without size",
			mutate: func(cfg *Config) {
				cfg.Output.PreviewSize = 0
			},
			wantErr: "output.previewSize must be positive",
		},
		{
			name: "sqlite without path",
			mutate: func(cfg *Config) {
				cfg.Cache.Driver = "sqlite"
			},
			wantErr: "cache.path must be set for the sqlite driver",
		},
		{
			name: "unknown cache driver",
			mutate: func(cfg *Config) {
				cfg.Cache.Driver = "redis"
			},
			wantErr: "cache.driver must be one of memory, sqlite, none",
		},
		{
			name: "missing listen address",
			mutate: func(cfg *Config) {
				cfg.Server.Listen = ""
			},
			wantErr: "server.listen must be set",
		},
		{
			name: "zero shutdown timeout",
			mutate: func(cfg *Config) {
				cfg.Server.ShutdownTimeout = 0
			},
			wantErr: "server.shutdownTimeout must be positive",
		},
		{
			name: "bad log level",
			mutate: func(cfg *Config) {
				cfg.Logging.Level = "chatty"
			},
			wantErr: `logging.level "chatty" is invalid`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected an error, got nil")
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("unexpected error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParamsFileSkipsPresetLookup(t *testing.T) {
	cfg := Default()
	cfg.Generation.Preset = "not-a-preset"
	cfg.Generation.ParamsFile = "trees/custom.yaml"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("params file should take precedence: %v", err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if want := Default(); !reflect.DeepEqual(cfg, want) {
		t.Fatalf("default configuration mismatch:\nwant: %#v\n got: %#v", want, cfg)
	}
}

func TestLoadReadsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treegen.json")

	cfg := Default()
	cfg.Generation.Seed = 77
	cfg.Server.Listen = ":9999"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("loaded configuration mismatch:\nwant: %#v\n got: %#v", cfg, got)
	}
}

func TestLoadReadsPartialYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treegen.yaml")
	if err := os.WriteFile(path, []byte(`
generation:
  preset: palm
  seed: 12
  timeout: 90s
server:
  shutdownTimeout: 2s
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Generation.Preset != "palm" || cfg.Generation.Seed != 12 {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if got := cfg.Generation.Timeout.Duration(); got != 90*time.Second {
		t.Errorf("timeout = %v, want 90s", got)
	}
	if got := cfg.Server.ShutdownTimeout.Duration(); got != 2*time.Second {
		t.Errorf("shutdownTimeout = %v, want 2s", got)
	}
	if cfg.Mesh.Sides != Default().Mesh.Sides {
		t.Errorf("mesh.sides = %d, want the default", cfg.Mesh.Sides)
	}
}

func TestLoadInvalidConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treegen.yaml")
	if err := os.WriteFile(path, []byte("mesh:\n  sides: 1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected load to fail")
	}
	if !strings.Contains(err.Error(), "validate config: mesh.sides must be at least 3") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadPropagatesReadErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path.yaml"); err == nil {
		t.Fatalf("Load() = nil, want error")
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "treegen.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := Default(); !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\nwant: %#v\n got: %#v", want, got)
	}
}

func TestDurationDecoding(t *testing.T) {
	var fromJSON struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
		C Duration `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"250ms","b":1000,"c":null}`), &fromJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	if fromJSON.A.Duration() != 250*time.Millisecond || fromJSON.B.Duration() != time.Microsecond || fromJSON.C != 0 {
		t.Fatalf("unexpected json durations: %+v", fromJSON)
	}

	var fromYAML struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	if err := yaml.Unmarshal([]byte("a: 3s\nb: 5\n"), &fromYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if fromYAML.A.Duration() != 3*time.Second || fromYAML.B.Duration() != 5 {
		t.Fatalf("unexpected yaml durations: %+v", fromYAML)
	}

	if err := json.Unmarshal([]byte(`{"a":"soon"}`), &fromJSON); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMeshOptions(t *testing.T) {
	cfg := Default()
	cfg.Mesh.Workers = 3
	opts := cfg.MeshOptions()
	if opts.Sides != cfg.Mesh.Sides || opts.Workers != 3 || opts.Joins != cfg.Mesh.Joins {
		t.Fatalf("unexpected options %+v", opts)
	}
}
