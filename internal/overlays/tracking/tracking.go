// Package tracking pins a brand logo onto the primary vehicle of every
// frame. It needs OpenCV through gocv.
package tracking

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/kikiluvv/scenechain/internal/ai"
	"github.com/kikiluvv/scenechain/internal/overlays"
	"github.com/kikiluvv/scenechain/pkg/util"
)

// LogoTracker pins a transparent logo onto the primary tracked vehicle of
// every frame, warped to the perspective of the reference logo found there.
type LogoTracker struct {
	logger   zerolog.Logger
	detector ai.ObjectDetector
	opts     overlays.TrackingOptions
}

func NewLogoTracker(logger zerolog.Logger, detector ai.ObjectDetector, opts overlays.TrackingOptions) *LogoTracker {
	return &LogoTracker{
		logger:   logger.With().Str("component", "tracking").Logger(),
		detector: detector,
		opts:     opts,
	}
}

// Apply writes a silent copy of input to output with the logo composited.
// Frames where no vehicle or no logo match is found are written unchanged.
func (t *LogoTracker) Apply(ctx context.Context, input, transparentLogo, referenceLogo, output string) (overlays.TrackingStats, error) {
	var stats overlays.TrackingStats
	for _, p := range []string{input, transparentLogo, referenceLogo} {
		if !util.FileExists(p) {
			return stats, fmt.Errorf("%w: %w: %s", overlays.ErrTrackingFailed, overlays.ErrAssetMissing, p)
		}
	}

	logo := gocv.IMRead(transparentLogo, gocv.IMReadUnchanged)
	defer logo.Close()
	if logo.Empty() {
		return stats, fmt.Errorf("%w: cannot decode %s", overlays.ErrTrackingFailed, transparentLogo)
	}
	if logo.Channels() != 4 {
		return stats, fmt.Errorf("%w: %w", overlays.ErrTrackingFailed, overlays.ErrLogoNoAlpha)
	}

	ref := gocv.IMRead(referenceLogo, gocv.IMReadGrayScale)
	defer ref.Close()
	if ref.Empty() {
		return stats, fmt.Errorf("%w: cannot decode %s", overlays.ErrTrackingFailed, referenceLogo)
	}
	matcher, err := newFeatureMatcher(ref, t.opts)
	if err != nil {
		return stats, fmt.Errorf("%w: %w", overlays.ErrTrackingFailed, err)
	}
	defer matcher.Close()

	capture, err := gocv.VideoCaptureFile(input)
	if err != nil {
		return stats, fmt.Errorf("%w: open %s: %w", overlays.ErrTrackingFailed, input, err)
	}
	defer capture.Close()

	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))
	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = 30
	}

	writer, err := gocv.VideoWriterFile(output, "mp4v", fps, width, height, true)
	if err != nil {
		return stats, fmt.Errorf("%w: create %s: %w", overlays.ErrTrackingFailed, output, err)
	}
	defer writer.Close()

	t.logger.Info().
		Str("input", input).
		Int("width", width).
		Int("height", height).
		Float64("fps", fps).
		Msg("tracking logo")

	tracker := ai.NewTracker(t.opts.TrackIoU, t.opts.MaxMissed)
	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			break
		}
		r := t.processFrame(&frame, tracker, matcher, logo)
		stats.Record(r)
		if t.opts.OnFrame != nil {
			t.opts.OnFrame(r)
		}
		if err := writer.Write(frame); err != nil {
			return stats, fmt.Errorf("%w: write frame %d: %w", overlays.ErrTrackingFailed, stats.Frames, err)
		}
	}
	if stats.Frames == 0 {
		return stats, fmt.Errorf("%w: no frames decoded from %s", overlays.ErrTrackingFailed, input)
	}

	t.logger.Info().
		Int("frames", stats.Frames).
		Int("overlaid", stats.Overlaid).
		Int("no_detection", stats.NoDetection).
		Int("no_match", stats.NoMatch).
		Int("errors", stats.Errors).
		Msg("tracking complete")
	return stats, nil
}

func (t *LogoTracker) processFrame(frame *gocv.Mat, tracker *ai.Tracker, m *featureMatcher, logo gocv.Mat) (result overlays.FrameResult) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn().Interface("panic", r).Msg("frame overlay panicked")
			result = overlays.FrameError
		}
	}()

	img, err := frame.ToImage()
	if err != nil {
		t.logger.Debug().Err(err).Msg("frame conversion failed")
		return overlays.FrameError
	}
	dets, err := t.detector.Detect(img)
	if err != nil {
		t.logger.Debug().Err(err).Msg("detection failed")
		return overlays.FrameError
	}
	track, ok := ai.Primary(tracker.Update(dets))
	if !ok {
		return overlays.FrameNoDetection
	}
	box := track.Box.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if box.Empty() {
		return overlays.FrameNoDetection
	}
	if err := m.overlay(frame, box, logo); err != nil {
		if isNoMatch(err) {
			return overlays.FrameNoMatch
		}
		t.logger.Debug().Err(err).Int("track", track.ID).Msg("perspective overlay failed")
		return overlays.FrameError
	}
	return overlays.FrameOverlaid
}
