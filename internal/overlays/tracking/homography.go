package tracking

import (
	"errors"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"github.com/kikiluvv/scenechain/internal/overlays"
)

var (
	errFewDescriptors = errors.New("too few descriptors in region")
	errFewMatches     = errors.New("too few feature matches")
	errNoHomography   = errors.New("homography not found")
)

func isNoMatch(err error) bool {
	return errors.Is(err, errFewDescriptors) || errors.Is(err, errFewMatches) || errors.Is(err, errNoHomography)
}

// featureMatcher locates the reference logo inside a region with ORB
// features and a RANSAC homography.
type featureMatcher struct {
	orb     gocv.ORB
	bf      gocv.BFMatcher
	refKeys []gocv.KeyPoint
	refDesc gocv.Mat
	opts    overlays.TrackingOptions
}

func newFeatureMatcher(refGray gocv.Mat, opts overlays.TrackingOptions) (*featureMatcher, error) {
	orb := gocv.NewORBWithParams(opts.ORBFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	mask := gocv.NewMat()
	defer mask.Close()

	keys, desc := orb.DetectAndCompute(refGray, mask)
	if desc.Empty() || len(keys) == 0 {
		desc.Close()
		orb.Close()
		return nil, errors.New("reference logo has no features")
	}
	return &featureMatcher{
		orb:     orb,
		bf:      gocv.NewBFMatcherWithParams(gocv.NormHamming, true),
		refKeys: keys,
		refDesc: desc,
		opts:    opts,
	}, nil
}

func (m *featureMatcher) Close() {
	m.refDesc.Close()
	m.bf.Close()
	m.orb.Close()
}

// homography maps reference logo coordinates into roiGray coordinates. The
// caller owns the returned Mat.
func (m *featureMatcher) homography(roiGray gocv.Mat) (gocv.Mat, error) {
	mask := gocv.NewMat()
	defer mask.Close()

	keys, desc := m.orb.DetectAndCompute(roiGray, mask)
	defer desc.Close()
	if desc.Empty() || desc.Rows() <= m.opts.MinDescriptors {
		return gocv.Mat{}, errFewDescriptors
	}

	// crossCheck with k=1 keeps only mutual best matches
	var matches []gocv.DMatch
	for _, group := range m.bf.KnnMatch(m.refDesc, desc, 1) {
		matches = append(matches, group...)
	}
	if len(matches) < m.opts.MinMatches {
		return gocv.Mat{}, errFewMatches
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })

	src := make([]gocv.Point2f, 0, len(matches))
	dst := make([]gocv.Point2f, 0, len(matches))
	for _, mt := range matches {
		rk, fk := m.refKeys[mt.QueryIdx], keys[mt.TrainIdx]
		src = append(src, gocv.Point2f{X: float32(rk.X), Y: float32(rk.Y)})
		dst = append(dst, gocv.Point2f{X: float32(fk.X), Y: float32(fk.Y)})
	}

	srcMat := pointsMat(src)
	defer srcMat.Close()
	dstMat := pointsMat(dst)
	defer dstMat.Close()
	inliers := gocv.NewMat()
	defer inliers.Close()

	h := gocv.FindHomography(srcMat, &dstMat, gocv.HomograpyMethodRANSAC, m.opts.RANSACThreshold, &inliers, 2000, 0.995)
	if h.Empty() {
		h.Close()
		return gocv.Mat{}, errNoHomography
	}
	return h, nil
}

// pointsMat packs points into an n×1 two-channel float Mat, the layout
// FindHomography expects.
func pointsMat(pts []gocv.Point2f) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV32FC2)
	for i, p := range pts {
		m.SetFloatAt(i, 0, p.X)
		m.SetFloatAt(i, 1, p.Y)
	}
	return m
}

// overlay warps logo into box and blends it onto frame in place.
func (m *featureMatcher) overlay(frame *gocv.Mat, box image.Rectangle, logo gocv.Mat) error {
	roi := frame.Region(box)
	defer roi.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)

	h, err := m.homography(gray)
	if err != nil {
		return err
	}
	defer h.Close()

	w, ht := box.Dx(), box.Dy()
	warped := gocv.NewMat()
	defer warped.Close()
	gocv.WarpPerspective(logo, &warped, h, image.Pt(w, ht))

	bg := roi.Clone()
	defer bg.Close()
	pixels := bg.ToBytes()
	if err := overlays.Composite(pixels, warped.ToBytes(), w, ht); err != nil {
		return err
	}
	blended, err := gocv.NewMatFromBytes(ht, w, gocv.MatTypeCV8UC3, pixels)
	if err != nil {
		return err
	}
	defer blended.Close()
	blended.CopyTo(&roi)
	return nil
}
