package preferences

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// LoadPresets parses the embedded format preset list.
func LoadPresets() ([]Preset, error) {
	var doc struct {
		Presets []Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(presetsYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	return doc.Presets, nil
}
