package overlays

// FrameResult is the per-frame outcome of the tracking overlay.
type FrameResult string

const (
	FrameOverlaid    FrameResult = "overlaid"
	FrameNoDetection FrameResult = "no_detection"
	FrameNoMatch     FrameResult = "no_match"
	FrameError       FrameResult = "error"
)

// TrackingOptions tunes detection association and perspective matching.
type TrackingOptions struct {
	ORBFeatures     int
	MinDescriptors  int
	MinMatches      int
	RANSACThreshold float64
	TrackIoU        float64
	MaxMissed       int
	// OnFrame, when set, observes every frame result.
	OnFrame func(FrameResult)
}

func DefaultTrackingOptions() TrackingOptions {
	return TrackingOptions{
		ORBFeatures:     2000,
		MinDescriptors:  20,
		MinMatches:      10,
		RANSACThreshold: 5.0,
		TrackIoU:        0.3,
		MaxMissed:       30,
	}
}

// TrackingStats counts frame outcomes of one run.
type TrackingStats struct {
	Frames      int
	Overlaid    int
	NoDetection int
	NoMatch     int
	Errors      int
}

// Record counts one frame outcome.
func (s *TrackingStats) Record(r FrameResult) {
	s.Frames++
	switch r {
	case FrameOverlaid:
		s.Overlaid++
	case FrameNoDetection:
		s.NoDetection++
	case FrameNoMatch:
		s.NoMatch++
	case FrameError:
		s.Errors++
	}
}
