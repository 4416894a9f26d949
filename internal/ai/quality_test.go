package ai

import (
	"image"
	"image/color"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func testScorer() *QualityScorer {
	return NewQualityScorer(zerolog.New(os.Stderr).Level(zerolog.WarnLevel), DefaultQualityWeights(), DefaultQualityNorms())
}

func solid(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func checkerboard(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(30)
			if (x/cell+y/cell)%2 == 0 {
				v = 220
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestQualityScoreInRange(t *testing.T) {
	s := testScorer()
	for name, img := range map[string]image.Image{
		"black":   solid(64, 48, 0),
		"white":   solid(64, 48, 255),
		"grey":    solid(64, 48, 127),
		"checker": checkerboard(64, 48, 4),
	} {
		score := s.Score(img)
		if score < 0 || score > 1 {
			t.Errorf("%s: score %v outside [0,1]", name, score)
		}
	}
}

func TestQualityBlackFrame(t *testing.T) {
	b := testScorer().Breakdown(solid(32, 32, 0))
	if b.Sharpness != 0 || b.Contrast != 0 || b.Composition != 0 {
		t.Errorf("flat black frame should have no detail: %+v", b)
	}
	if b.Brightness != fallbackMetric {
		t.Errorf("brightness should floor at %v, got %v", fallbackMetric, b.Brightness)
	}
}

func TestQualityPrefersDetail(t *testing.T) {
	s := testScorer()
	flat := s.Score(solid(64, 64, 127))
	sharp := s.Score(checkerboard(64, 64, 2))
	if sharp <= flat {
		t.Errorf("detailed frame (%v) should beat a flat one (%v)", sharp, flat)
	}
}

func TestQualityTinyFrameFallsBack(t *testing.T) {
	b := testScorer().Breakdown(solid(2, 2, 127))
	if b.Sharpness != fallbackMetric {
		t.Errorf("sharpness on a 2x2 frame should fall back, got %v", b.Sharpness)
	}
	if b.Total < 0 || b.Total > 1 {
		t.Errorf("total outside [0,1]: %v", b.Total)
	}
}

func TestQualityDeterministic(t *testing.T) {
	s := testScorer()
	img := checkerboard(40, 30, 3)
	if s.Score(img) != s.Score(img) {
		t.Error("scoring the same frame twice must give the same result")
	}
}
