package params

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetData []byte

type presetCatalog struct {
	Presets []ParameterSet `yaml:"presets"`
}

var (
	presetsOnce sync.Once
	presetIndex map[string]*ParameterSet
	presetOrder []string
	presetErr   error
)

func loadPresets() {
	var catalog presetCatalog
	if err := yaml.Unmarshal(presetData, &catalog); err != nil {
		presetErr = fmt.Errorf("parse preset catalog: %w", err)
		return
	}
	presetIndex = make(map[string]*ParameterSet, len(catalog.Presets))
	for i := range catalog.Presets {
		p := &catalog.Presets[i]
		if err := p.Validate(); err != nil {
			presetErr = fmt.Errorf("preset %s: %w", p.Name, err)
			return
		}
		if _, dup := presetIndex[p.Name]; dup {
			presetErr = fmt.Errorf("preset %s defined twice", p.Name)
			return
		}
		presetIndex[p.Name] = p
		presetOrder = append(presetOrder, p.Name)
	}
	sort.Strings(presetOrder)
}

// PresetNames lists the built-in catalog in alphabetical order.
func PresetNames() []string {
	presetsOnce.Do(loadPresets)
	return append([]string(nil), presetOrder...)
}

// Preset returns a private copy of the named built-in preset.
func Preset(name string) (*ParameterSet, error) {
	presetsOnce.Do(loadPresets)
	if presetErr != nil {
		return nil, presetErr
	}
	p, ok := presetIndex[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	return p.Clone(), nil
}

// Default is the quaking aspen preset.
func Default() *ParameterSet {
	p, err := Preset("quaking_aspen")
	if err != nil {
		panic(err)
	}
	return p
}
