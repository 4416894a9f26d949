package ai

import (
	"image"
	"sort"
)

// Track is an object followed across frames under a stable ID.
type Track struct {
	ID     int
	Box    image.Rectangle
	Class  int
	missed int
}

// Tracker associates detections frame to frame by greedy IoU matching.
type Tracker struct {
	nextID       int
	tracks       []*Track
	iouThreshold float64
	maxMissed    int
}

// NewTracker creates a tracker. Tracks unseen for more than maxMissed
// frames are dropped.
func NewTracker(iouThreshold float64, maxMissed int) *Tracker {
	if iouThreshold <= 0 {
		iouThreshold = 0.3
	}
	if maxMissed <= 0 {
		maxMissed = 30
	}
	return &Tracker{nextID: 1, iouThreshold: iouThreshold, maxMissed: maxMissed}
}

// Update feeds one frame of detections and returns the tracks seen in this
// frame ordered by ID.
func (t *Tracker) Update(dets []Detection) []Track {
	type pair struct {
		track, det int
		iou        float64
	}
	var pairs []pair
	for ti, tr := range t.tracks {
		for di, d := range dets {
			if d.Class != tr.Class {
				continue
			}
			if iou := IoU(tr.Box, d.Box); iou >= t.iouThreshold {
				pairs = append(pairs, pair{ti, di, iou})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	trackUsed := make([]bool, len(t.tracks))
	detUsed := make([]bool, len(dets))
	var seen []Track

	for _, p := range pairs {
		if trackUsed[p.track] || detUsed[p.det] {
			continue
		}
		trackUsed[p.track], detUsed[p.det] = true, true
		tr := t.tracks[p.track]
		tr.Box = dets[p.det].Box
		tr.missed = 0
		seen = append(seen, *tr)
	}

	live := t.tracks[:0]
	for i, tr := range t.tracks {
		if !trackUsed[i] {
			tr.missed++
		}
		if tr.missed <= t.maxMissed {
			live = append(live, tr)
		}
	}
	t.tracks = live

	for di, d := range dets {
		if detUsed[di] {
			continue
		}
		tr := &Track{ID: t.nextID, Box: d.Box, Class: d.Class}
		t.nextID++
		t.tracks = append(t.tracks, tr)
		seen = append(seen, *tr)
	}

	sort.Slice(seen, func(i, j int) bool { return seen[i].ID < seen[j].ID })
	return seen
}

// Primary returns the first tracked object of a frame, if any.
func Primary(tracks []Track) (Track, bool) {
	if len(tracks) == 0 {
		return Track{}, false
	}
	return tracks[0], true
}
