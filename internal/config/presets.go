package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/neka-nat/lecturia/internal/domain"
)

type presetFile struct {
	Characters map[string]domain.Character `yaml:"characters"`
}

// DefaultPresets mirror the sprite sheets bundled in the asset directory.
func DefaultPresets() map[string]domain.Character {
	return map[string]domain.Character{
		"woman":   {Name: "sensei", SpriteName: "sprite_woman.png", VoiceType: "woman"},
		"cat":     {Name: "neko", SpriteName: "sprite_cat.png", VoiceType: "cat"},
		"scholar": {Name: "scholar", SpriteName: "sprite_ancient_scholar.png", VoiceType: "man"},
	}
}

// LoadCharacterPresets reads the preset catalog from a YAML file. An empty
// path selects the built-in defaults.
func LoadCharacterPresets(path string) (map[string]domain.Character, error) {
	if path == "" {
		return DefaultPresets(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character presets: %w", err)
	}
	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse character presets: %w", err)
	}
	if len(pf.Characters) == 0 {
		return nil, fmt.Errorf("character preset file %s defines no characters", path)
	}
	for name, ch := range pf.Characters {
		if ch.SpriteName == "" || ch.VoiceType == "" {
			return nil, fmt.Errorf("preset %q needs both sprite_name and voice_type", name)
		}
	}
	return pf.Characters, nil
}
