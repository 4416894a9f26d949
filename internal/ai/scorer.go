package ai

import (
	"image"
	"math"
)

// Scorer rates a single frame on a 0-1 scale.
type Scorer interface {
	Score(img image.Image) float64
}

// grayFrame is an 8-bit-range luminance plane stored as float64.
type grayFrame struct {
	w, h int
	pix  []float64
}

func (g *grayFrame) at(x, y int) float64 {
	return g.pix[y*g.w+x]
}

// toGray converts any image to BT.601 luma.
func toGray(img image.Image) *grayFrame {
	b := img.Bounds()
	g := &grayFrame{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < g.h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+g.w]
			for x, v := range row {
				g.pix[y*g.w+x] = float64(v)
			}
		}
	case *image.RGBA:
		for y := 0; y < g.h; y++ {
			off := y * src.Stride
			for x := 0; x < g.w; x++ {
				p := src.Pix[off+x*4 : off+x*4+3]
				g.pix[y*g.w+x] = luma(float64(p[0]), float64(p[1]), float64(p[2]))
			}
		}
	default:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, gg, bb, _ := img.At(x, y).RGBA()
				g.pix[i] = luma(float64(r>>8), float64(gg>>8), float64(bb>>8))
				i++
			}
		}
	}
	return g
}

func luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum, sq float64
	for _, v := range values {
		sum += v
		sq += v * v
	}
	n := float64(len(values))
	mean := sum / n
	variance := sq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
