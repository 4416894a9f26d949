package ffmpeg

import (
	"context"
	"fmt"
)

// RecombineAudio muxes the video stream of silent with the audio stream of
// source. The video is copied, the audio re-encoded to AAC.
func (e *Executor) RecombineAudio(ctx context.Context, silent, source, output string) error {
	e.logger.Info().
		Str("video", silent).
		Str("audio", source).
		Str("output", output).
		Msg("recombining audio")

	args := []string{
		"-i", silent,
		"-i", source,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", e.enc.AudioCodec,
		"-b:a", e.enc.AudioBitrate,
		"-shortest",
		output,
	}

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("audio recombine")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("audio recombine failed: %w", err)
	}
	return nil
}
