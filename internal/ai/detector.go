package ai

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sort"
	"sync"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	yoloInputSize = 640
	yoloAnchors   = 8400
	yoloClasses   = 80
)

// Detection is one object found in a frame, in frame pixel coordinates.
type Detection struct {
	Box        image.Rectangle
	Class      int
	Confidence float64
}

// ObjectDetector finds objects of interest in a single frame.
type ObjectDetector interface {
	Detect(img image.Image) ([]Detection, error)
	Close() error
}

// DetectorConfig configures the YOLO detector
type DetectorConfig struct {
	ModelPath      string
	RuntimeLibrary string
	Classes        []int
	Confidence     float64
	NMSThreshold   float64
}

// DefaultDetectorConfig targets cars and trucks in COCO.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ModelPath:    "./models/yolov8n.onnx",
		Classes:      []int{2, 7},
		Confidence:   0.25,
		NMSThreshold: 0.45,
	}
}

// The ONNX environment is process-wide; detectors for different models
// share it.
var (
	runtimeOnce  sync.Once
	runtimeErr   error
	startRuntime = func(library string) error {
		if ort.IsInitialized() {
			return nil
		}
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		return ort.InitializeEnvironment()
	}
)

// initRuntime starts the ONNX environment once. The library path of the
// first caller wins.
func initRuntime(library string) error {
	runtimeOnce.Do(func() {
		runtimeErr = startRuntime(library)
	})
	return runtimeErr
}

// YOLODetector runs a YOLOv8 ONNX export. The session is read-only after
// construction and every call allocates its own tensors.
type YOLODetector struct {
	logger  zerolog.Logger
	config  DetectorConfig
	classes map[int]bool
	session *ort.DynamicAdvancedSession
}

// NewYOLODetector loads the model and creates an inference session.
func NewYOLODetector(logger zerolog.Logger, cfg DetectorConfig) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	if err := initRuntime(cfg.RuntimeLibrary); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputNames := []string{"images"}
	outputNames := []string{"output0"}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector session: %w", err)
	}

	classes := make(map[int]bool, len(cfg.Classes))
	for _, c := range cfg.Classes {
		classes[c] = true
	}

	logger.Info().
		Str("model", cfg.ModelPath).
		Ints("classes", cfg.Classes).
		Msg("detector model loaded")

	return &YOLODetector{
		logger:  logger.With().Str("component", "detector").Logger(),
		config:  cfg,
		classes: classes,
		session: sess,
	}, nil
}

// Detect runs one forward pass and returns class-filtered, suppressed boxes.
func (d *YOLODetector) Detect(img image.Image) ([]Detection, error) {
	lb := newLetterbox(img.Bounds(), yoloInputSize)

	input, err := ort.NewTensor(ort.NewShape(1, 3, yoloInputSize, yoloInputSize), lb.tensor(img))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 4+yoloClasses, yoloAnchors))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := d.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("detector inference failed: %w", err)
	}

	raw := decodeYOLO(output.GetData(), yoloAnchors, yoloClasses, d.config.Confidence, d.classes)
	dets := nonMaxSuppression(raw, d.config.NMSThreshold)
	for i := range dets {
		dets[i].Box = lb.unmap(dets[i].Box, img.Bounds())
	}

	d.logger.Debug().Int("detections", len(dets)).Msg("frame analysed")
	return dets, nil
}

// Close releases the inference session.
func (d *YOLODetector) Close() error {
	d.logger.Info().Msg("closing detector session")
	if d.session != nil {
		return d.session.Destroy()
	}
	return nil
}

// letterbox maps a frame onto a square model input, preserving aspect ratio
// and padding with grey.
type letterbox struct {
	size   int
	scale  float64
	newW   int
	newH   int
	padX   int
	padY   int
	origin image.Point
}

func newLetterbox(b image.Rectangle, size int) letterbox {
	scale := min(float64(size)/float64(b.Dx()), float64(size)/float64(b.Dy()))
	nw := int(float64(b.Dx())*scale + 0.5)
	nh := int(float64(b.Dy())*scale + 0.5)
	return letterbox{
		size:   size,
		scale:  scale,
		newW:   nw,
		newH:   nh,
		padX:   (size - nw) / 2,
		padY:   (size - nh) / 2,
		origin: b.Min,
	}
}

// tensor renders img into CHW float32 in [0,1].
func (lb letterbox) tensor(img image.Image) []float32 {
	canvas := image.NewRGBA(image.Rect(0, 0, lb.size, lb.size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.RGBA{R: 114, G: 114, B: 114, A: 255}}, image.Point{}, draw.Src)

	scaled := resize.Resize(uint(lb.newW), uint(lb.newH), img, resize.Bilinear)
	dst := image.Rect(lb.padX, lb.padY, lb.padX+lb.newW, lb.padY+lb.newH)
	draw.Draw(canvas, dst, scaled, scaled.Bounds().Min, draw.Src)

	plane := lb.size * lb.size
	data := make([]float32, 3*plane)
	for y := 0; y < lb.size; y++ {
		for x := 0; x < lb.size; x++ {
			off := y*canvas.Stride + x*4
			i := y*lb.size + x
			data[i] = float32(canvas.Pix[off]) / 255
			data[plane+i] = float32(canvas.Pix[off+1]) / 255
			data[2*plane+i] = float32(canvas.Pix[off+2]) / 255
		}
	}
	return data
}

// unmap converts a box in model space back to frame coordinates.
func (lb letterbox) unmap(r image.Rectangle, bounds image.Rectangle) image.Rectangle {
	conv := func(v, pad int) int {
		return int(float64(v-pad) / lb.scale)
	}
	out := image.Rect(
		conv(r.Min.X, lb.padX)+lb.origin.X,
		conv(r.Min.Y, lb.padY)+lb.origin.Y,
		conv(r.Max.X, lb.padX)+lb.origin.X,
		conv(r.Max.Y, lb.padY)+lb.origin.Y,
	)
	return out.Intersect(bounds)
}

// decodeYOLO reads a [4+classes, anchors] output (cx, cy, w, h, scores...).
func decodeYOLO(data []float32, anchors, classes int, conf float64, keep map[int]bool) []Detection {
	if len(data) < (4+classes)*anchors {
		return nil
	}
	var dets []Detection
	for j := 0; j < anchors; j++ {
		bestClass, bestScore := -1, float32(0)
		for c := 0; c < classes; c++ {
			if s := data[(4+c)*anchors+j]; s > bestScore {
				bestClass, bestScore = c, s
			}
		}
		if bestClass < 0 || float64(bestScore) < conf {
			continue
		}
		if len(keep) > 0 && !keep[bestClass] {
			continue
		}
		cx, cy := data[j], data[anchors+j]
		w, h := data[2*anchors+j], data[3*anchors+j]
		dets = append(dets, Detection{
			Box: image.Rect(
				int(cx-w/2), int(cy-h/2),
				int(cx+w/2), int(cy+h/2),
			),
			Class:      bestClass,
			Confidence: float64(bestScore),
		})
	}
	return dets
}

// nonMaxSuppression keeps the most confident box among same-class overlaps.
func nonMaxSuppression(dets []Detection, threshold float64) []Detection {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		suppressed := false
		for _, k := range kept {
			if k.Class == d.Class && IoU(k.Box, d.Box) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

// IoU is the intersection-over-union of two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
