package ffmpeg

import (
	"context"
	"fmt"

	"github.com/kikiluvv/scenechain/pkg/util"
)

// LogoOptions places a static logo in the top-right corner.
type LogoOptions struct {
	Width  int
	Margin int
}

// EndCardOptions describes the closing brand card.
type EndCardOptions struct {
	Seconds float64
	Color   string
}

func logoGraph(opts LogoOptions) string {
	return fmt.Sprintf("[1:v]scale=%d:-1[logo];[0:v][logo]overlay=main_w-overlay_w-%d:%d",
		opts.Width, opts.Margin, opts.Margin)
}

// OverlayLogo burns a scaled logo into every frame, keeping the audio stream.
func (e *Executor) OverlayLogo(ctx context.Context, input, logo, output string, opts LogoOptions) error {
	if input == "" || logo == "" || output == "" {
		return fmt.Errorf("input, logo and output paths are required")
	}
	if opts.Width <= 0 {
		opts.Width = 200
	}

	e.logger.Info().
		Str("input", input).
		Str("logo", logo).
		Str("output", output).
		Msg("applying logo overlay")

	args := []string{
		"-i", input,
		"-i", logo,
		"-filter_complex", logoGraph(opts),
		"-c:v", e.enc.VideoCodec,
		"-preset", e.enc.Preset,
		"-crf", fmt.Sprintf("%d", e.enc.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		output,
	}

	runOpts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("overlay output")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("logo overlay failed: %w", err)
	}

	e.logger.Info().Str("output", output).Msg("logo overlay completed")
	return nil
}

// RenderEndCard turns a still image into a short clip with a silent stereo
// track, letterboxed onto the brand colour.
func (e *Executor) RenderEndCard(ctx context.Context, image, output string, opts EndCardOptions) error {
	if image == "" || output == "" {
		return fmt.Errorf("image and output paths are required")
	}
	if opts.Seconds <= 0 {
		opts.Seconds = 3
	}

	vf := NewFilterBuilder().
		ScaleFit(e.enc.Width, e.enc.Height).
		Pad(e.enc.Width, e.enc.Height, opts.Color).
		SetSAR(1).
		Build()

	args := []string{
		"-loop", "1",
		"-i", image,
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", DefaultSampleRate),
		"-vf", vf,
		"-c:v", e.enc.VideoCodec,
		"-pix_fmt", "yuv420p",
		"-c:a", e.enc.AudioCodec,
		"-b:a", e.enc.AudioBitrate,
		"-t", util.FormatSeconds(opts.Seconds),
		"-r", fmt.Sprintf("%g", e.enc.FPS),
		output,
	}

	e.logger.Info().
		Str("image", image).
		Float64("seconds", opts.Seconds).
		Msg("rendering end card")

	if err := e.Run(ctx, RunOptions{Args: args}); err != nil {
		return fmt.Errorf("end card render failed: %w", err)
	}
	return nil
}

// AppendWithCrossfade fades main into tail over t seconds, so the transition
// starts at duration(main) - t.
func (e *Executor) AppendWithCrossfade(ctx context.Context, main, tail, output string, t float64) error {
	return e.Crossfade(ctx, CrossfadeOptions{
		Inputs:   []string{main, tail},
		Output:   output,
		Duration: t,
	})
}
