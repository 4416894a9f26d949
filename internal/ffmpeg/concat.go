package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kikiluvv/scenechain/pkg/util"
)

// ConcatOptions defines concatenation parameters
type ConcatOptions struct {
	Inputs       []string
	Output       string
	ProgressFunc ProgressFunc
}

// Concat joins clips back to back. It tries a lossless stream copy through
// the concat demuxer first and falls back to a normalizing re-encode when the
// inputs disagree on codec parameters. A single input is copied as-is.
func (e *Executor) Concat(ctx context.Context, opts ConcatOptions) error {
	if len(opts.Inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	if len(opts.Inputs) == 1 {
		if err := e.CopySingle(ctx, opts.Inputs[0], opts.Output); err != nil {
			return fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
		}
		return nil
	}

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Str("output", opts.Output).
		Msg("concatenating videos")

	copyErr := e.concatCopy(ctx, opts)
	if copyErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	e.logger.Warn().Err(copyErr).Msg("stream copy concat failed, re-encoding")

	if err := e.concatReencode(ctx, opts); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrAssemblyFailed, errors.Join(copyErr, err))
	}
	return nil
}

func (e *Executor) concatCopy(ctx context.Context, opts ConcatOptions) error {
	concatFile, err := createConcatFile(filepath.Dir(opts.Output), opts.Inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(concatFile)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", concatFile,
		"-c", "copy",
		"-movflags", "+faststart",
		opts.Output,
	}

	return e.Run(ctx, RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("concatenating")
		},
	})
}

func (e *Executor) concatReencode(ctx context.Context, opts ConcatOptions) error {
	_, infos, err := e.Durations(ctx, opts.Inputs)
	if err != nil {
		return err
	}

	g := e.enc.buildInputs(opts.Inputs, infos)
	graph := concatGraph(g)

	args := append([]string{}, g.args...)
	args = append(args,
		"-filter_complex", graph,
		"-map", "[vout]",
		"-map", "[aout]",
	)
	args = append(args, e.enc.outputArgs()...)
	args = append(args, opts.Output)

	return e.Run(ctx, RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("re-encode concatenating")
		},
	})
}

// graphInputs is the input side of a filter graph: -i arguments plus one
// normalized video and audio label per clip.
type graphInputs struct {
	args   []string
	chains []string
	video  []string
	audio  []string
}

// buildInputs normalizes each clip. Clips without an audio stream get a
// silent track of the same length so audio filters always have a partner.
func (enc Encoding) buildInputs(inputs []string, infos []*VideoInfo) graphInputs {
	var g graphInputs
	for _, in := range inputs {
		g.args = append(g.args, "-i", in)
	}

	next := len(inputs)
	for i, info := range infos {
		v := fmt.Sprintf("v%d", i)
		a := fmt.Sprintf("a%d", i)
		g.chains = append(g.chains, Labeled(fmt.Sprintf("%d:v", i), enc.normalizeVideo(), v))

		src := fmt.Sprintf("%d:a", i)
		if !info.HasAudio {
			g.args = append(g.args,
				"-f", "lavfi",
				"-t", util.FormatSeconds(info.Seconds()),
				"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", DefaultSampleRate),
			)
			src = fmt.Sprintf("%d:a", next)
			next++
		}
		g.chains = append(g.chains, Labeled(src, enc.normalizeAudio(), a))
		g.video = append(g.video, v)
		g.audio = append(g.audio, a)
	}
	return g
}

func concatGraph(g graphInputs) string {
	var pads strings.Builder
	for i := range g.video {
		fmt.Fprintf(&pads, "[%s][%s]", g.video[i], g.audio[i])
	}
	join := fmt.Sprintf("%sconcat=n=%d:v=1:a=1[vout][aout]", pads.String(), len(g.video))
	return strings.Join(append(append([]string{}, g.chains...), join), ";")
}

// createConcatFile generates a file list for the ffmpeg concat demuxer
func createConcatFile(dir string, inputs []string) (string, error) {
	tmpFile, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return "", err
		}
		escaped := strings.ReplaceAll(absPath, "'", `'\''`)
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", escaped); err != nil {
			return "", err
		}
	}

	return tmpFile.Name(), nil
}
