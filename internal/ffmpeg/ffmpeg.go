package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrAssemblyFailed marks a stitching failure that survived every fallback.
var ErrAssemblyFailed = errors.New("video assembly failed")

// CommandError is returned when ffmpeg exits non-zero. Stderr holds the tail
// of the diagnostic output.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg execution failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg execution failed: %v: %s", e.Err, lastLine(e.Stderr))
}

func (e *CommandError) Unwrap() error { return e.Err }

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
	enc         Encoding
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, threads int) (*Executor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
		enc:         DefaultEncoding(),
	}, nil
}

// WithEncoding replaces the output encoding settings.
func (e *Executor) WithEncoding(enc Encoding) *Executor {
	e.enc = enc.withDefaults()
	return e
}

// Encoding returns the active output encoding settings.
func (e *Executor) Encoding() Encoding {
	return e.enc
}

// Run executes ffmpeg with opts.Args. Diagnostics and -progress blocks both
// arrive on stderr; a non-zero exit returns a *CommandError carrying the
// last lines of diagnostic output.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return errors.New("no arguments provided")
	}
	args := append(e.baseArgs(), opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tail := newTailBuffer(stderrTailLines)
	e.streamOutput(stderr, opts.Total, opts.ProgressHandler, func(line string) {
		tail.Add(line)
		if opts.LogHandler != nil {
			opts.LogHandler(line)
		}
	})

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CommandError{Args: args, Stderr: tail.String(), Err: err}
	}
	return nil
}

// baseArgs come before every command; -threads must precede the inputs.
func (e *Executor) baseArgs() []string {
	args := []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "info"}
	if e.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(e.threads))
	}
	return append(args, "-progress", "pipe:2")
}

// streamOutput forwards every line to logHandler and folds -progress
// key=value blocks into Progress updates.
func (e *Executor) streamOutput(r io.Reader, total time.Duration, progressHandler func(*Progress), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	p := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()
		if logHandler != nil {
			logHandler(line)
		}
		if !isProgressLine(line) {
			continue
		}

		key, value, _ := strings.Cut(line, "=")
		switch key {
		case "frame":
			p.Frame, _ = strconv.Atoi(value)
		case "fps":
			p.FPS, _ = strconv.ParseFloat(value, 64)
		case "bitrate":
			p.Bitrate = value
		case "speed":
			p.Speed = value
		case "out_time":
			p.Time = value
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && total > 0 {
				p.Percentage = math.Min(100, float64(us)/float64(total.Microseconds())*100)
			}
		case "progress":
			if progressHandler != nil && p.Frame > 0 {
				progressHandler(p)
			}
			p = &Progress{}
		}
	}
}

const stderrTailLines = 40

// tailBuffer keeps the last n diagnostic lines, skipping -progress key=value output.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Add(line string) {
	if isProgressLine(line) || strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

func isProgressLine(line string) bool {
	return !strings.ContainsAny(line, " \t") && strings.Contains(line, "=")
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
