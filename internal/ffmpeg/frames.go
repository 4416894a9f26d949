package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kikiluvv/scenechain/pkg/util"
)

// ExtractedFrame is a decoded-on-demand frame written to disk.
type ExtractedFrame struct {
	Index int
	Path  string
}

// selectExpr builds a select filter matching exactly the given frame numbers.
func selectExpr(indices []int) string {
	terms := make([]string, len(indices))
	for i, n := range indices {
		terms[i] = fmt.Sprintf("eq(n,%d)", n)
	}
	return fmt.Sprintf("select='%s'", strings.Join(terms, "+"))
}

// ExtractFrames writes the frames at the given indices as PNG files in dir,
// using a single decode pass. Indices are deduplicated and returned in
// ascending order.
func (e *Executor) ExtractFrames(ctx context.Context, input, dir string, indices []int) ([]ExtractedFrame, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("no frame indices requested")
	}

	sorted := dedupeSorted(indices)
	if err := util.EnsureDir(dir); err != nil {
		return nil, err
	}
	pattern := filepath.Join(dir, "frame_%04d.png")

	e.logger.Debug().
		Str("input", input).
		Ints("indices", sorted).
		Msg("extracting frames")

	args := []string{
		"-i", input,
		"-vf", selectExpr(sorted),
		"-vsync", "vfr",
		"-frames:v", fmt.Sprintf("%d", len(sorted)),
		pattern,
	}

	if err := e.Run(ctx, RunOptions{Args: args}); err != nil {
		return nil, fmt.Errorf("frame extraction failed: %w", err)
	}

	frames := make([]ExtractedFrame, 0, len(sorted))
	for i, idx := range sorted {
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i+1))
		if _, err := os.Stat(path); err != nil {
			// select ran past the last decodable frame
			break
		}
		frames = append(frames, ExtractedFrame{Index: idx, Path: path})
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("frame extraction produced no images")
	}
	return frames, nil
}

func dedupeSorted(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[i-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}

// GenerateThumbnail creates a thumbnail image at a specific timestamp
func (e *Executor) GenerateThumbnail(ctx context.Context, input, output string, timestamp time.Duration, progressFunc ProgressFunc) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Dur("timestamp", timestamp).
		Msg("generating thumbnail")

	args := []string{
		"-ss", util.FormatDuration(timestamp),
		"-i", input,
		"-vframes", "1",
		"-q:v", "2", // high quality JPEG
		output,
	}

	opts := RunOptions{
		Args:            args,
		ProgressHandler: progressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("thumbnail generation")
		},
	}

	return e.Run(ctx, opts)
}
