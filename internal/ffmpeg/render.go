package ffmpeg

import "fmt"

// Encoding describes the canonical output format every re-encode targets.
type Encoding struct {
	VideoCodec   string
	AudioCodec   string
	Preset       string
	CRF          int
	AudioBitrate string
	Width        int
	Height       int
	FPS          float64
}

// DefaultEncoding returns 1080p30 H.264/AAC.
func DefaultEncoding() Encoding {
	return Encoding{}.withDefaults()
}

func (enc Encoding) withDefaults() Encoding {
	if enc.VideoCodec == "" {
		enc.VideoCodec = DefaultVideoCodec
	}
	if enc.AudioCodec == "" {
		enc.AudioCodec = DefaultAudioCodec
	}
	if enc.Preset == "" {
		enc.Preset = DefaultPreset
	}
	if enc.CRF == 0 {
		enc.CRF = DefaultCRF
	}
	if enc.AudioBitrate == "" {
		enc.AudioBitrate = DefaultAudioBitrate
	}
	if enc.Width <= 0 || enc.Height <= 0 {
		enc.Width, enc.Height = DefaultWidth, DefaultHeight
	}
	if enc.FPS <= 0 {
		enc.FPS = DefaultFPS
	}
	return enc
}

// outputArgs are the codec flags shared by every re-encoding operation.
func (enc Encoding) outputArgs() []string {
	return []string{
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", fmt.Sprintf("%d", enc.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", enc.AudioCodec,
		"-b:a", enc.AudioBitrate,
		"-movflags", "+faststart",
	}
}

// normalizeVideo fits a stream into the canonical frame with letterboxing
// and resets its timestamps.
func (enc Encoding) normalizeVideo() string {
	return NewFilterBuilder().
		ScaleFit(enc.Width, enc.Height).
		Pad(enc.Width, enc.Height, "").
		SetSAR(1).
		ResetPTS().
		FPS(enc.FPS).
		Build()
}

// normalizeAudio resamples a stream so acrossfade and concat see matching formats.
func (enc Encoding) normalizeAudio() string {
	return NewFilterBuilder().
		AResample(DefaultSampleRate).
		AFormat("stereo").
		AResetPTS().
		Build()
}
