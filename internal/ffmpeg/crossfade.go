package ffmpeg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kikiluvv/scenechain/pkg/util"
)

// CrossfadeOptions configures a crossfaded join.
type CrossfadeOptions struct {
	Inputs []string
	Output string
	// Transition length in seconds.
	Duration     float64
	ProgressFunc ProgressFunc
}

// XfadeOffsets returns the start time of each transition on the output
// timeline: offset_i = d_0 + ... + d_i - (i+1)*t, for i in [0, n-2].
func XfadeOffsets(durations []float64, t float64) []float64 {
	if len(durations) < 2 {
		return nil
	}
	offsets := make([]float64, 0, len(durations)-1)
	var sum float64
	for i := 0; i < len(durations)-1; i++ {
		sum += durations[i]
		offsets = append(offsets, sum-float64(i+1)*t)
	}
	return offsets
}

// TimelineDuration is the expected length after n-1 overlapping transitions.
func TimelineDuration(durations []float64, t float64) float64 {
	var sum float64
	for _, d := range durations {
		sum += d
	}
	if len(durations) > 1 {
		sum -= float64(len(durations)-1) * t
	}
	return sum
}

// Crossfade joins inputs with a video fade and a matching audio crossfade at
// each boundary. Every clip must be longer than the transition.
func (e *Executor) Crossfade(ctx context.Context, opts CrossfadeOptions) error {
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
	if opts.Duration <= 0 {
		return fmt.Errorf("transition duration must be positive")
	}

	durations, infos, err := e.Durations(ctx, opts.Inputs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
	}
	for i, d := range durations {
		if d <= opts.Duration {
			return fmt.Errorf("%w: clip %d is %.2fs, shorter than the %.2fs transition",
				ErrAssemblyFailed, i, d, opts.Duration)
		}
	}

	offsets := XfadeOffsets(durations, opts.Duration)

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Float64("transition", opts.Duration).
		Floats64("offsets", offsets).
		Float64("expected_duration", TimelineDuration(durations, opts.Duration)).
		Str("output", opts.Output).
		Msg("crossfading videos")

	g := e.enc.buildInputs(opts.Inputs, infos)
	graph, vout, aout := crossfadeGraph(g, offsets, opts.Duration)

	args := append([]string{}, g.args...)
	args = append(args,
		"-filter_complex", graph,
		"-map", "["+vout+"]",
		"-map", "["+aout+"]",
	)
	args = append(args, e.enc.outputArgs()...)
	args = append(args, "-vsync", "cfr", opts.Output)

	err = e.Run(ctx, RunOptions{
		Args:            args,
		Total:           time.Duration(TimelineDuration(durations, opts.Duration) * float64(time.Second)),
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("crossfading")
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
	}
	return nil
}

// crossfadeGraph chains xfade/acrossfade pairwise over the normalized inputs
// and returns the graph with its final video and audio labels.
func crossfadeGraph(g graphInputs, offsets []float64, t float64) (string, string, string) {
	parts := append([]string{}, g.chains...)
	prevV, prevA := g.video[0], g.audio[0]
	td := util.FormatSeconds(t)

	for i := 1; i < len(g.video); i++ {
		outV := fmt.Sprintf("vx%d", i)
		outA := fmt.Sprintf("ax%d", i)
		parts = append(parts,
			fmt.Sprintf("[%s][%s]xfade=transition=fade:duration=%s:offset=%s[%s]",
				prevV, g.video[i], td, util.FormatSeconds(offsets[i-1]), outV),
			fmt.Sprintf("[%s][%s]acrossfade=d=%s[%s]", prevA, g.audio[i], td, outA),
		)
		prevV, prevA = outV, outA
	}
	return strings.Join(parts, ";"), prevV, prevA
}
