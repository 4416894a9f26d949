package ai

import (
	"errors"
	"image"
	"math"

	"github.com/rs/zerolog"
)

// fallbackMetric stands in for any sub-metric that could not be computed.
const fallbackMetric = 0.1

var errFrameTooSmall = errors.New("frame too small")

// QualityWeights blends the four sub-metrics; they should sum to 1.
type QualityWeights struct {
	Sharpness   float64
	Contrast    float64
	Brightness  float64
	Composition float64
}

// QualityNorms are the divisors that map raw statistics into 0-1.
type QualityNorms struct {
	Sharpness     float64
	Contrast      float64
	BrightnessMid float64
}

// DefaultQualityWeights returns 0.4/0.3/0.2/0.1.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{Sharpness: 0.4, Contrast: 0.3, Brightness: 0.2, Composition: 0.1}
}

// DefaultQualityNorms returns 500/80/127.
func DefaultQualityNorms() QualityNorms {
	return QualityNorms{Sharpness: 500, Contrast: 80, BrightnessMid: 127}
}

// QualityScorer rates frames by sharpness, contrast, exposure and how bright
// the centre of the frame is.
type QualityScorer struct {
	logger  zerolog.Logger
	weights QualityWeights
	norms   QualityNorms
}

// NewQualityScorer creates a scorer with the given weights and normalizers
func NewQualityScorer(logger zerolog.Logger, weights QualityWeights, norms QualityNorms) *QualityScorer {
	return &QualityScorer{
		logger:  logger.With().Str("scorer", "quality").Logger(),
		weights: weights,
		norms:   norms,
	}
}

// QualityBreakdown holds the individual sub-metrics of a score.
type QualityBreakdown struct {
	Sharpness   float64
	Contrast    float64
	Brightness  float64
	Composition float64
	Total       float64
}

// Score returns the blended quality in [0,1]
func (q *QualityScorer) Score(img image.Image) float64 {
	return q.Breakdown(img).Total
}

// Breakdown scores a frame and reports every sub-metric
func (q *QualityScorer) Breakdown(img image.Image) QualityBreakdown {
	g := toGray(img)

	b := QualityBreakdown{
		Sharpness:   q.metric("sharpness", func() (float64, error) { return q.sharpness(g) }),
		Contrast:    q.metric("contrast", func() (float64, error) { return q.contrast(g) }),
		Brightness:  q.metric("brightness", func() (float64, error) { return q.brightness(g) }),
		Composition: q.metric("composition", func() (float64, error) { return q.composition(g) }),
	}

	b.Total = clamp01(q.weights.Sharpness*b.Sharpness +
		q.weights.Contrast*b.Contrast +
		q.weights.Brightness*b.Brightness +
		q.weights.Composition*b.Composition)

	q.logger.Debug().
		Float64("sharpness", b.Sharpness).
		Float64("contrast", b.Contrast).
		Float64("brightness", b.Brightness).
		Float64("composition", b.Composition).
		Float64("score", b.Total).
		Msg("frame quality scored")

	return b
}

func (q *QualityScorer) metric(name string, fn func() (float64, error)) float64 {
	v, err := fn()
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = errors.New("non-finite value")
	}
	if err != nil {
		q.logger.Debug().Err(err).Str("metric", name).Msg("metric unavailable, using fallback")
		return fallbackMetric
	}
	return v
}

// sharpness is the variance of a 4-neighbour Laplacian over interior pixels
func (q *QualityScorer) sharpness(g *grayFrame) (float64, error) {
	if g.w < 3 || g.h < 3 {
		return 0, errFrameTooSmall
	}
	lap := make([]float64, 0, (g.w-2)*(g.h-2))
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			v := g.at(x, y-1) + g.at(x-1, y) + g.at(x+1, y) + g.at(x, y+1) - 4*g.at(x, y)
			lap = append(lap, v)
		}
	}
	_, std := meanStd(lap)
	return math.Min(1, std*std/q.norms.Sharpness), nil
}

func (q *QualityScorer) contrast(g *grayFrame) (float64, error) {
	if len(g.pix) == 0 {
		return 0, errFrameTooSmall
	}
	_, std := meanStd(g.pix)
	return math.Min(1, std/q.norms.Contrast), nil
}

// brightness peaks at mid-grey and never drops below the fallback floor
func (q *QualityScorer) brightness(g *grayFrame) (float64, error) {
	if len(g.pix) == 0 {
		return 0, errFrameTooSmall
	}
	mean, _ := meanStd(g.pix)
	mid := q.norms.BrightnessMid
	return math.Max(fallbackMetric, 1-math.Abs(mean-mid)/mid), nil
}

// composition is the mean brightness of the central half of the frame
func (q *QualityScorer) composition(g *grayFrame) (float64, error) {
	x0, x1 := g.w/4, 3*g.w/4
	y0, y1 := g.h/4, 3*g.h/4
	if x1 <= x0 || y1 <= y0 {
		return 0, errFrameTooSmall
	}
	var sum float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			sum += g.at(x, y)
		}
	}
	return sum / float64((x1-x0)*(y1-y0)) / 255, nil
}
