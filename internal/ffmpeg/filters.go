package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder helps construct complex ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		// Return self without adding filter - allows chaining to continue
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// ScaleFit scales down to fit inside width x height keeping aspect ratio
func (fb *FilterBuilder) ScaleFit(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height))
	return fb
}

// Pad centers the frame on a width x height canvas, optionally coloured
func (fb *FilterBuilder) Pad(width, height int, color string) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	f := fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", width, height)
	if color != "" {
		f += ":color=" + color
	}
	fb.filters = append(fb.filters, f)
	return fb
}

// SetSAR forces the sample aspect ratio
func (fb *FilterBuilder) SetSAR(sar int) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("setsar=%d", sar))
	return fb
}

// ResetPTS rebases video timestamps to zero
func (fb *FilterBuilder) ResetPTS() *FilterBuilder {
	fb.filters = append(fb.filters, "setpts=PTS-STARTPTS")
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fps=%f", fps))
	return fb
}

// AResample resamples audio to rate, padding or trimming to keep it in sync
func (fb *FilterBuilder) AResample(rate int) *FilterBuilder {
	if rate <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("aresample=%d:async=1:min_hard_comp=0.100000:first_pts=0", rate))
	return fb
}

// AFormat forces the audio channel layout
func (fb *FilterBuilder) AFormat(layout string) *FilterBuilder {
	fb.filters = append(fb.filters, "aformat=channel_layouts="+layout)
	return fb
}

// AResetPTS rebases audio timestamps to zero
func (fb *FilterBuilder) AResetPTS() *FilterBuilder {
	fb.filters = append(fb.filters, "asetpts=PTS-STARTPTS")
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

// Labeled wraps a chain with input and output pads, e.g. "[0:v]chain[v0]".
func Labeled(in, chain, out string) string {
	return fmt.Sprintf("[%s]%s[%s]", in, chain, out)
}
