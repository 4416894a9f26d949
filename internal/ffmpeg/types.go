package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath     string
	Duration     time.Duration
	Width        int
	Height       int
	FPS          float64
	Frames       int
	Bitrate      int64
	VideoCodec   string
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
}

// Seconds returns the duration as float seconds, the unit filter graphs use.
func (v *VideoInfo) Seconds() float64 {
	return v.Duration.Seconds()
}

// FrameCount returns the container frame count, estimating from duration
// and rate when the muxer did not record one.
func (v *VideoInfo) FrameCount() int {
	if v.Frames > 0 {
		return v.Frames
	}
	if v.FPS > 0 {
		return int(v.Duration.Seconds() * v.FPS)
	}
	return 0
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame      int
	FPS        float64
	Bitrate    string
	Time       string
	Speed      string
	Percentage float64
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args []string
	// Total is the expected output duration; when set, Progress.Percentage is filled.
	Total           time.Duration
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF          = 18
	DefaultPreset       = "veryfast"
	DefaultVideoCodec   = "libx264"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "192k"
	DefaultWidth        = 1920
	DefaultHeight       = 1080
	DefaultFPS          = 30.0
	DefaultSampleRate   = 44100
)

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)
