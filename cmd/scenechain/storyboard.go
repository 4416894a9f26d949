package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/scenechain/internal/clips"
)

// storyboard is the YAML input of the generate command.
type storyboard struct {
	Scenes     []clips.Scene    `yaml:"scenes"`
	Parameters clips.Parameters `yaml:"parameters"`
	SeedImage  *clips.SeedImage `yaml:"seed_image"`
}

func loadStoryboard(path string) (*storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sb storyboard
	if err := yaml.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	// ids default to the scene position
	for i := range sb.Scenes {
		if sb.Scenes[i].ID == 0 {
			sb.Scenes[i].ID = i + 1
		}
	}
	if err := clips.ValidateScenes(sb.Scenes); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := sb.Parameters.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sb.SeedImage != nil && sb.SeedImage.URI == "" {
		sb.SeedImage = nil
	}
	return &sb, nil
}
