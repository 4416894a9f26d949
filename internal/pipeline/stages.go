package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/kikiluvv/scenechain/internal/ffmpeg"
	"github.com/kikiluvv/scenechain/internal/metrics"
	"github.com/kikiluvv/scenechain/internal/overlays"
	"github.com/kikiluvv/scenechain/internal/workspace"
)

// Stage is one step of post-processing. It reads the files of the previous
// stage and returns the files it produced.
type Stage interface {
	Name() string
	Run(ctx context.Context, ws *workspace.Workspace, in []string) ([]string, error)
}

// VariantStage derives a second artifact from the final video. Its failure
// never fails the job.
type VariantStage interface {
	Stage
	// ObjectName is the filename the variant is uploaded under.
	ObjectName() string
}

// LogoTracker pins the transparent logo onto every frame of input and
// writes a silent copy to output.
type LogoTracker interface {
	Apply(ctx context.Context, input, transparentLogo, referenceLogo, output string) (overlays.TrackingStats, error)
}

// TrackerLoader builds a LogoTracker, loading the shared detector on first use.
type TrackerLoader func(opts overlays.TrackingOptions) (LogoTracker, error)

type assembleStage struct {
	media       MediaTool
	stitch      bool
	transitions bool
	crossfade   float64
}

func (s *assembleStage) Name() string { return "assemble" }

func (s *assembleStage) Run(ctx context.Context, ws *workspace.Workspace, in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: no clips to assemble", ffmpeg.ErrAssemblyFailed)
	}
	if !s.stitch {
		return in[:1], nil
	}

	out := ws.MustPath("stitched.mp4")
	if len(in) > 1 && s.transitions {
		if err := s.media.Crossfade(ctx, ffmpeg.CrossfadeOptions{Inputs: in, Output: out, Duration: s.crossfade}); err != nil {
			return nil, err
		}
		return []string{out}, nil
	}
	// a single input is copied through, not concatenated
	if err := s.media.Concat(ctx, ffmpeg.ConcatOptions{Inputs: in, Output: out}); err != nil {
		return nil, err
	}
	return []string{out}, nil
}

type brandStage struct {
	media      MediaTool
	assets     *overlays.Registry
	logo       bool
	endCard    bool
	logoOpts   ffmpeg.LogoOptions
	cardOpts   ffmpeg.EndCardOptions
	transition float64
}

func (s *brandStage) Name() string { return "brand" }

func (s *brandStage) Run(ctx context.Context, ws *workspace.Workspace, in []string) ([]string, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("%w: expected one input, got %d", ErrBrandingFailed, len(in))
	}

	// resolve everything before running ffmpeg
	var logoPath, cardPath string
	var err error
	if s.logo {
		if logoPath, err = s.assets.Resolve(overlays.AssetLogo); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBrandingFailed, err)
		}
	}
	if s.endCard {
		if cardPath, err = s.assets.Resolve(overlays.AssetEndCard); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBrandingFailed, err)
		}
	}

	current := in[0]
	if s.logo {
		out := ws.MustPath("branded_logo.mp4")
		if err := s.media.OverlayLogo(ctx, current, logoPath, out, s.logoOpts); err != nil {
			return nil, fmt.Errorf("%w: logo: %w", ErrBrandingFailed, err)
		}
		current = out
	}
	if s.endCard {
		card := ws.MustPath("end_card.mp4")
		if err := s.media.RenderEndCard(ctx, cardPath, card, s.cardOpts); err != nil {
			return nil, fmt.Errorf("%w: end card: %w", ErrBrandingFailed, err)
		}
		out := ws.MustPath("final_branded.mp4")
		if err := s.media.AppendWithCrossfade(ctx, current, card, out, s.transition); err != nil {
			return nil, fmt.Errorf("%w: append end card: %w", ErrBrandingFailed, err)
		}
		current = out
	}
	return []string{current}, nil
}

type trackingStage struct {
	media   MediaTool
	assets  *overlays.Registry
	load    TrackerLoader
	opts    overlays.TrackingOptions
	metrics *metrics.Metrics
}

func (s *trackingStage) Name() string       { return "tracking" }
func (s *trackingStage) ObjectName() string { return "processed_tracked.mp4" }

func (s *trackingStage) Run(ctx context.Context, ws *workspace.Workspace, in []string) ([]string, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("%w: expected one input, got %d", overlays.ErrTrackingFailed, len(in))
	}
	if s.load == nil {
		return nil, fmt.Errorf("%w: no detector configured", overlays.ErrTrackingFailed)
	}
	transparent, err := s.assets.Resolve(overlays.AssetTransparentLogo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", overlays.ErrTrackingFailed, err)
	}
	reference, err := s.assets.Resolve(overlays.AssetReferenceLogo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", overlays.ErrTrackingFailed, err)
	}
	opts := s.opts
	opts.OnFrame = func(r overlays.FrameResult) { s.metrics.RecordTrackingFrame(string(r)) }
	tracker, err := s.load(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: load tracker: %w", overlays.ErrTrackingFailed, err)
	}

	silent := ws.MustPath("tracked_silent.mp4")
	if _, err := tracker.Apply(ctx, in[0], transparent, reference, silent); err != nil {
		return nil, err
	}

	info, err := s.media.ProbeVideo(ctx, in[0])
	if err != nil {
		return nil, fmt.Errorf("%w: probe source: %w", overlays.ErrTrackingFailed, err)
	}
	if !info.HasAudio {
		return []string{silent}, nil
	}
	out := ws.MustPath("final_tracked_with_audio.mp4")
	if err := s.media.RecombineAudio(ctx, silent, in[0], out); err != nil {
		return nil, fmt.Errorf("%w: recombine audio: %w", overlays.ErrTrackingFailed, err)
	}
	return []string{out}, nil
}

// runVariant runs a best-effort stage, turning panics into errors.
func runVariant(ctx context.Context, v VariantStage, ws *workspace.Workspace, in []string) (out []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%s panicked: %v", v.Name(), r)
		}
	}()
	out, err = v.Run(ctx, ws, in)
	if err == nil && len(out) != 1 {
		err = errors.New(v.Name() + " produced no single output")
	}
	return out, err
}
