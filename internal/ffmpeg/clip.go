package ffmpeg

import (
	"context"
	"fmt"
)

// CopySingle remuxes one clip without re-encoding and moves the index to the
// front of the file so the result streams.
func (e *Executor) CopySingle(ctx context.Context, input, output string) error {
	if input == "" || output == "" {
		return fmt.Errorf("input and output paths are required")
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Msg("single clip, copying streams")

	runOpts := RunOptions{
		Args: []string{
			"-i", input,
			"-c", "copy",
			"-movflags", "+faststart",
			output,
		},
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("stream copy")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("stream copy failed: %w", err)
	}
	return nil
}
