package pipeline

import (
	"time"

	"github.com/kikiluvv/scenechain/internal/clips"
	"github.com/kikiluvv/scenechain/internal/config"
	"github.com/kikiluvv/scenechain/internal/ffmpeg"
	"github.com/kikiluvv/scenechain/internal/ledger"
	"github.com/kikiluvv/scenechain/internal/overlays"
	"github.com/kikiluvv/scenechain/internal/storage"
)

// GenerateOptions toggles post-processing of a generation job.
type GenerateOptions struct {
	Stitch         bool
	Transitions    bool
	MotionTracking bool
	KeepArtifacts  bool
}

// DefaultGenerateOptions stitches with crossfades and skips tracking.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{Stitch: true, Transitions: true}
}

// GenerateRequest is one storyboard to turn into a branded video.
type GenerateRequest struct {
	Scenes     []clips.Scene
	Parameters clips.Parameters
	SeedImage  *clips.SeedImage
	Options    GenerateOptions
}

// ProcessOptions configures post-processing of clips already in storage.
type ProcessOptions struct {
	Stitch         bool
	Transitions    bool
	ApplyLogo      bool
	ApplyEndCard   bool
	MotionTracking bool
	KeepArtifacts  bool
	// Upload sends outputs to blob storage. When false the result holds
	// local paths and the workspace is kept.
	Upload bool
}

// DefaultProcessOptions matches what a generation job runs.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{
		Stitch:       true,
		Transitions:  true,
		ApplyLogo:    true,
		ApplyEndCard: true,
		Upload:       true,
	}
}

func (o GenerateOptions) process() ProcessOptions {
	p := DefaultProcessOptions()
	p.Stitch = o.Stitch
	p.Transitions = o.Transitions
	p.MotionTracking = o.MotionTracking
	p.KeepArtifacts = o.KeepArtifacts
	return p
}

// Result is what a finished job hands back to the caller.
type Result struct {
	JobID           string                `json:"job_id"`
	Status          ledger.Status         `json:"status"`
	Clips           []clips.GeneratedClip `json:"clips"`
	FinalVideoURI   string                `json:"final_video_uri"`
	TrackedVideoURI *string               `json:"tracked_video_uri"`
	ThumbnailURI    *string               `json:"thumbnail_uri"`
	OutputDir       string                `json:"output_dir,omitempty"`
	GenerationTime  float64               `json:"generation_time_seconds"`
}

// StepResult is the outcome of one scene of the chain. Break stops the
// chain after this step; Clip is kept even when Break is set.
type StepResult struct {
	Clip  *clips.GeneratedClip
	Break bool
	Err   error
}

// Config holds pipeline runtime knobs
type Config struct {
	WorkDir string
	// OutputBase is scheme://bucket for generated clips.
	OutputBase       string
	DownloadWorkers  int
	CrossfadeSeconds float64
	ThumbnailAt      time.Duration
	Logo             ffmpeg.LogoOptions
	EndCard          ffmpeg.EndCardOptions
	BrandTransition  float64
	Tracking         overlays.TrackingOptions
}

// ConfigFromApp derives pipeline settings from the application config.
func ConfigFromApp(c *config.Config) Config {
	tracking := overlays.DefaultTrackingOptions()
	tracking.ORBFeatures = c.Tracking.ORBFeatures
	tracking.MinDescriptors = c.Tracking.MinDescriptors
	tracking.MinMatches = c.Tracking.MinMatches
	tracking.RANSACThreshold = c.Tracking.RANSACThreshold

	return Config{
		WorkDir:          c.WorkDir,
		OutputBase:       storage.URI{Scheme: c.Storage.Scheme, Bucket: c.Storage.Bucket}.String(),
		DownloadWorkers:  c.Pipeline.DownloadWorkers,
		CrossfadeSeconds: c.Pipeline.CrossfadeSeconds,
		ThumbnailAt:      c.Pipeline.ThumbnailAt,
		Logo:             ffmpeg.LogoOptions{Width: c.Brand.LogoWidth, Margin: c.Brand.Margin},
		EndCard:          ffmpeg.EndCardOptions{Seconds: c.Brand.EndCardSeconds, Color: c.Brand.EndCardColor},
		BrandTransition:  c.Brand.TransitionSeconds,
		Tracking:         tracking,
	}
}

func (c Config) withDefaults() Config {
	if c.DownloadWorkers <= 0 {
		c.DownloadWorkers = 4
	}
	if c.CrossfadeSeconds <= 0 {
		c.CrossfadeSeconds = 1.0
	}
	if c.ThumbnailAt <= 0 {
		c.ThumbnailAt = time.Second
	}
	if c.Logo.Width <= 0 {
		c.Logo.Width = 200
	}
	if c.Logo.Margin <= 0 {
		c.Logo.Margin = 20
	}
	if c.EndCard.Seconds <= 0 {
		c.EndCard.Seconds = 3
	}
	if c.EndCard.Color == "" {
		c.EndCard.Color = "#0055aa"
	}
	if c.BrandTransition <= 0 {
		c.BrandTransition = 0.5
	}
	if c.Tracking.ORBFeatures <= 0 {
		c.Tracking = overlays.DefaultTrackingOptions()
	}
	return c
}
