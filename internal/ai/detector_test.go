package ai

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	assert.Equal(t, 1.0, IoU(a, a))
	assert.Equal(t, 0.0, IoU(a, image.Rect(20, 20, 30, 30)))
	assert.InDelta(t, 25.0/175.0, IoU(a, image.Rect(5, 5, 15, 15)), 1e-9)
}

func TestDecodeYOLOFiltersClasses(t *testing.T) {
	const anchors, classes = 3, 8
	data := make([]float32, (4+classes)*anchors)
	set := func(j int, cx, cy, w, h float32, class int, score float32) {
		data[j], data[anchors+j], data[2*anchors+j], data[3*anchors+j] = cx, cy, w, h
		data[(4+class)*anchors+j] = score
	}
	set(0, 100, 100, 40, 20, 2, 0.9)  // car
	set(1, 300, 300, 50, 50, 0, 0.95) // person, filtered
	set(2, 500, 500, 10, 10, 7, 0.1)  // truck below threshold

	dets := decodeYOLO(data, anchors, classes, 0.25, map[int]bool{2: true, 7: true})
	require.Len(t, dets, 1)
	assert.Equal(t, 2, dets[0].Class)
	assert.Equal(t, image.Rect(80, 90, 120, 110), dets[0].Box)
}

func TestNonMaxSuppression(t *testing.T) {
	dets := []Detection{
		{Box: image.Rect(0, 0, 100, 100), Class: 2, Confidence: 0.6},
		{Box: image.Rect(5, 5, 105, 105), Class: 2, Confidence: 0.9},
		{Box: image.Rect(5, 5, 105, 105), Class: 7, Confidence: 0.5},
		{Box: image.Rect(300, 300, 400, 400), Class: 2, Confidence: 0.4},
	}
	kept := nonMaxSuppression(dets, 0.45)
	require.Len(t, kept, 3)
	assert.Equal(t, 0.9, kept[0].Confidence)
}

func TestLetterboxRoundTrip(t *testing.T) {
	bounds := image.Rect(0, 0, 1920, 1080)
	lb := newLetterbox(bounds, 640)
	assert.Equal(t, 640, lb.newW)
	assert.Equal(t, 360, lb.newH)
	assert.Equal(t, 140, lb.padY)

	// a box covering the whole letterboxed content maps back to the frame
	r := lb.unmap(image.Rect(0, 140, 640, 500), bounds)
	assert.Equal(t, bounds, r)
}

func TestTrackerKeepsIDs(t *testing.T) {
	tr := NewTracker(0.3, 2)

	first := tr.Update([]Detection{{Box: image.Rect(0, 0, 50, 50), Class: 2}})
	require.Len(t, first, 1)
	id := first[0].ID

	second := tr.Update([]Detection{
		{Box: image.Rect(300, 300, 350, 350), Class: 2},
		{Box: image.Rect(4, 4, 54, 54), Class: 2},
	})
	require.Len(t, second, 2)
	primary, ok := Primary(second)
	require.True(t, ok)
	assert.Equal(t, id, primary.ID)
	assert.Equal(t, image.Rect(4, 4, 54, 54), primary.Box)
}

func TestTrackerExpiresTracks(t *testing.T) {
	tr := NewTracker(0.3, 1)
	tr.Update([]Detection{{Box: image.Rect(0, 0, 10, 10), Class: 2}})
	tr.Update(nil)
	tr.Update(nil)
	got := tr.Update([]Detection{{Box: image.Rect(0, 0, 10, 10), Class: 2}})
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].ID, "expired track must not be revived")

	_, ok := Primary(nil)
	assert.False(t, ok)
}

type stubDetector struct{ closed bool }

func (s *stubDetector) Detect(image.Image) ([]Detection, error) { return nil, nil }
func (s *stubDetector) Close() error                            { s.closed = true; return nil }

func TestRegistryLoadsOnce(t *testing.T) {
	reg := NewModelRegistry()
	var loads int32
	det := &stubDetector{}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := reg.GetOrLoad("yolo", func() (ObjectDetector, error) {
				atomic.AddInt32(&loads, 1)
				return det, nil
			})
			assert.NoError(t, err)
			assert.Same(t, det, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads)
	require.NoError(t, reg.Close())
	assert.True(t, det.closed)
}

func TestRegistryCachesFailure(t *testing.T) {
	reg := NewModelRegistry()
	boom := errors.New("no model")
	calls := 0
	load := func() (ObjectDetector, error) {
		calls++
		return nil, boom
	}

	_, err := reg.GetOrLoad("yolo", load)
	assert.ErrorIs(t, err, boom)
	_, err = reg.GetOrLoad("yolo", load)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRuntimeStartsOnceAcrossModels(t *testing.T) {
	prevStart := startRuntime
	runtimeOnce, runtimeErr = sync.Once{}, nil
	t.Cleanup(func() {
		startRuntime = prevStart
		runtimeOnce, runtimeErr = sync.Once{}, nil
	})

	var starts int32
	startRuntime = func(string) error {
		atomic.AddInt32(&starts, 1)
		return nil
	}

	reg := NewModelRegistry()
	var wg sync.WaitGroup
	for _, key := range []string{"yolov8n.onnx", "yolov8s.onnx", "yolov8m.onnx", "yolov8l.onnx"} {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.GetOrLoad(key, func() (ObjectDetector, error) {
				if err := initRuntime(""); err != nil {
					return nil, err
				}
				return &stubDetector{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), starts)
}
