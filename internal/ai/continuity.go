package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sort"

	"github.com/kikiluvv/scenechain/internal/ffmpeg"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
)

// ErrNoCandidates is returned when a clip yields no usable frames.
var ErrNoCandidates = errors.New("no candidate frames")

// CandidateFrame is one frame considered as the seed for the next scene.
type CandidateFrame struct {
	Image      image.Image
	Index      int
	Timestamp  float64
	Quality    float64
	Continuity *float64
	Combined   *float64
}

// FrameSource is the subset of the ffmpeg executor the selector needs.
type FrameSource interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	ExtractFrames(ctx context.Context, input, dir string, indices []int) ([]ffmpeg.ExtractedFrame, error)
}

// ContinuityOptions tunes candidate sampling and the final blend.
type ContinuityOptions struct {
	Candidates       int
	WindowSeconds    float64
	QualityWeight    float64
	ContinuityWeight float64
}

// DefaultContinuityOptions samples the last 3 seconds for 3 candidates and
// blends 0.6 quality with 0.4 continuity.
func DefaultContinuityOptions() ContinuityOptions {
	return ContinuityOptions{Candidates: 3, WindowSeconds: 3, QualityWeight: 0.6, ContinuityWeight: 0.4}
}

// ContinuitySelector picks the tail frame of a clip that best seeds the next
// scene: sharp and well exposed, and close to what the viewer just saw.
type ContinuitySelector struct {
	logger  zerolog.Logger
	frames  FrameSource
	scorer  Scorer
	options ContinuityOptions
}

// NewContinuitySelector wires a selector to a frame source and quality scorer
func NewContinuitySelector(logger zerolog.Logger, frames FrameSource, scorer Scorer, opts ContinuityOptions) *ContinuitySelector {
	if opts.Candidates < 1 {
		opts.Candidates = 3
	}
	if opts.WindowSeconds <= 0 {
		opts.WindowSeconds = 3
	}
	return &ContinuitySelector{
		logger:  logger.With().Str("component", "continuity").Logger(),
		frames:  frames,
		scorer:  scorer,
		options: opts,
	}
}

// FramePlan lists the frame indices to sample from the tail of a clip. The
// window starts windowSeconds before the last frame and is stepped so that
// at most requested*3 indices are returned.
func FramePlan(totalFrames int, fps, windowSeconds float64, requested int) []int {
	if totalFrames <= 0 || requested <= 0 {
		return nil
	}
	end := totalFrames - 1
	start := end - int(windowSeconds*fps)
	if start < 0 {
		start = 0
	}
	interval := (end - start) / (requested * 2)
	if interval < 1 {
		interval = 1
	}

	limit := requested * 3
	plan := make([]int, 0, limit)
	for i := start; i < end && len(plan) < limit; i += interval {
		plan = append(plan, i)
	}
	return plan
}

// Candidates extracts the planned tail frames of clipPath into workDir and
// returns the highest quality ones, best first.
func (s *ContinuitySelector) Candidates(ctx context.Context, clipPath, workDir string) ([]CandidateFrame, error) {
	info, err := s.frames.ProbeVideo(ctx, clipPath)
	if err != nil {
		return nil, fmt.Errorf("probe clip: %w", err)
	}

	plan := FramePlan(info.FrameCount(), info.FPS, s.options.WindowSeconds, s.options.Candidates)
	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: clip has %d frames", ErrNoCandidates, info.FrameCount())
	}

	extracted, err := s.frames.ExtractFrames(ctx, clipPath, workDir, plan)
	if err != nil {
		return nil, err
	}

	candidates := make([]CandidateFrame, 0, len(extracted))
	for _, f := range extracted {
		img, err := LoadImage(f.Path)
		if err != nil {
			s.logger.Warn().Err(err).Int("frame", f.Index).Msg("skipping undecodable frame")
			continue
		}
		ts := 0.0
		if info.FPS > 0 {
			ts = float64(f.Index) / info.FPS
		}
		candidates = append(candidates, CandidateFrame{
			Image:     img,
			Index:     f.Index,
			Timestamp: ts,
			Quality:   s.scorer.Score(img),
		})
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Quality != candidates[j].Quality {
			return candidates[i].Quality > candidates[j].Quality
		}
		return candidates[i].Index < candidates[j].Index
	})
	if len(candidates) > s.options.Candidates {
		candidates = candidates[:s.options.Candidates]
	}

	s.logger.Debug().
		Int("sampled", len(plan)).
		Int("kept", len(candidates)).
		Msg("candidate frames ready")

	return candidates, nil
}

// Select picks the best candidate. With no previous frame the choice is by
// quality alone; otherwise quality and similarity to prev are blended. Ties
// go to the lowest frame index, so the result is deterministic.
func (s *ContinuitySelector) Select(candidates []CandidateFrame, prev image.Image) (*CandidateFrame, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	var best *CandidateFrame
	bestScore := math.Inf(-1)

	for i := range candidates {
		c := candidates[i]
		score := c.Quality

		if prev != nil {
			sim, err := Similarity(prev, c.Image)
			if err != nil {
				// this frame competes on quality alone
				s.logger.Warn().Err(err).Int("frame", c.Index).Msg("similarity failed, scoring by quality")
				combined := c.Quality
				c.Combined = &combined
			} else {
				combined := s.options.QualityWeight*c.Quality + s.options.ContinuityWeight*sim
				c.Continuity = &sim
				c.Combined = &combined
				score = combined
			}
		}

		if score > bestScore || (score == bestScore && c.Index < best.Index) {
			picked := c
			best = &picked
			bestScore = score
		}
	}

	evt := s.logger.Info().
		Int("frame", best.Index).
		Float64("timestamp", best.Timestamp).
		Float64("quality", best.Quality)
	if best.Continuity != nil {
		evt = evt.Float64("continuity", *best.Continuity)
	}
	if best.Combined != nil {
		evt = evt.Float64("combined", *best.Combined)
	}
	evt.Msg("continuity frame selected")

	return best, nil
}

// Similarity is 1 minus the mean absolute grayscale difference of the two
// frames, after resizing both to their common minimum size.
func Similarity(a, b image.Image) (float64, error) {
	ab, bb := a.Bounds(), b.Bounds()
	w := min(ab.Dx(), bb.Dx())
	h := min(ab.Dy(), bb.Dy())
	if w <= 0 || h <= 0 {
		return 0, errors.New("empty frame")
	}

	ga := toGray(fit(a, w, h))
	gb := toGray(fit(b, w, h))
	if len(ga.pix) != len(gb.pix) {
		return 0, fmt.Errorf("resize mismatch: %d vs %d pixels", len(ga.pix), len(gb.pix))
	}

	var diff float64
	for i := range ga.pix {
		diff += math.Abs(ga.pix[i] - gb.pix[i])
	}
	mean := diff / float64(len(ga.pix))
	return math.Max(0, 1-mean/255), nil
}

func fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	return resize.Resize(uint(w), uint(h), img, resize.Bilinear)
}

// LoadImage decodes a PNG or JPEG from disk.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// SaveJPEG writes img at high quality.
func SaveJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
