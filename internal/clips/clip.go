package clips

import (
	"context"
	"errors"
	"fmt"
)

// ErrGenerationFailed wraps every failure reported by a clip generator.
var ErrGenerationFailed = errors.New("clip generation failed")

// Scene is one shot of the storyboard.
type Scene struct {
	ID       int    `json:"id" yaml:"id"`
	Prompt   string `json:"prompt" yaml:"prompt"`
	Duration int    `json:"duration" yaml:"duration"`
}

// Validate checks the scene fits what generators accept.
func (s Scene) Validate() error {
	if s.Prompt == "" {
		return fmt.Errorf("scene %d: prompt is required", s.ID)
	}
	if s.Duration < 1 || s.Duration > 8 {
		return fmt.Errorf("scene %d: duration %ds outside 1..8", s.ID, s.Duration)
	}
	return nil
}

// ValidateScenes checks an ordered storyboard.
func ValidateScenes(scenes []Scene) error {
	if len(scenes) == 0 {
		return errors.New("at least one scene is required")
	}
	seen := make(map[int]bool, len(scenes))
	for _, s := range scenes {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate scene id %d", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// SeedImage is a still used as the first frame of a generated clip.
type SeedImage struct {
	URI      string `json:"uri" yaml:"uri"`
	MimeType string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
}

// Parameters are forwarded to the generator. A nil field means the option
// is omitted and the backend default applies.
type Parameters struct {
	AspectRatio        *string `json:"aspect_ratio,omitempty" yaml:"aspect_ratio,omitempty"`
	Resolution         *string `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	EnhancePrompt      *bool   `json:"enhance_prompt,omitempty" yaml:"enhance_prompt,omitempty"`
	GenerateAudio      *bool   `json:"generate_audio,omitempty" yaml:"generate_audio,omitempty"`
	NegativePrompt     *string `json:"negative_prompt,omitempty" yaml:"negative_prompt,omitempty"`
	Seed               *int    `json:"seed,omitempty" yaml:"seed,omitempty"`
	SampleCount        *int    `json:"sample_count,omitempty" yaml:"sample_count,omitempty"`
	CompressionQuality *string `json:"compression_quality,omitempty" yaml:"compression_quality,omitempty"`
	PersonGeneration   *string `json:"person_generation,omitempty" yaml:"person_generation,omitempty"`
}

// Validate rejects values no generator accepts.
func (p Parameters) Validate() error {
	if p.SampleCount != nil && (*p.SampleCount < 1 || *p.SampleCount > 4) {
		return fmt.Errorf("sample_count %d outside 1..4", *p.SampleCount)
	}
	if p.CompressionQuality != nil {
		switch *p.CompressionQuality {
		case "optimized", "lossless":
		default:
			return fmt.Errorf("compression_quality %q must be optimized or lossless", *p.CompressionQuality)
		}
	}
	return nil
}

// Map returns only the options that were set, keyed by their API names.
func (p Parameters) Map() map[string]any {
	m := make(map[string]any)
	if p.AspectRatio != nil {
		m["aspectRatio"] = *p.AspectRatio
	}
	if p.Resolution != nil {
		m["resolution"] = *p.Resolution
	}
	if p.EnhancePrompt != nil {
		m["enhancePrompt"] = *p.EnhancePrompt
	}
	if p.GenerateAudio != nil {
		m["generateAudio"] = *p.GenerateAudio
	}
	if p.NegativePrompt != nil {
		m["negativePrompt"] = *p.NegativePrompt
	}
	if p.Seed != nil {
		m["seed"] = *p.Seed
	}
	if p.SampleCount != nil {
		m["sampleCount"] = *p.SampleCount
	}
	if p.CompressionQuality != nil {
		m["compressionQuality"] = *p.CompressionQuality
	}
	if p.PersonGeneration != nil {
		m["personGeneration"] = *p.PersonGeneration
	}
	return m
}

// GeneratedClip is a stored clip produced for one scene.
type GeneratedClip struct {
	SceneID    int    `json:"scene_id"`
	StorageURI string `json:"storage_uri"`
}

// GenerateRequest asks a generator for one clip.
type GenerateRequest struct {
	Prompt          string
	DurationSeconds int
	Seed            *SeedImage
	Parameters      Parameters
	// OutputURI is where the generator must write the clip.
	OutputURI string
}

// Generator produces a clip in blob storage and returns its URI.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// URIs extracts the storage URIs in order.
func URIs(generated []GeneratedClip) []string {
	out := make([]string, len(generated))
	for i, c := range generated {
		out[i] = c.StorageURI
	}
	return out
}
