package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion measurement constants
const (
	// MotionBlurSize is the Gaussian kernel size applied before differencing.
	MotionBlurSize = 5
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
)

// MotionMeter measures how much a region changes between consecutive ticks.
// Subject movement inside the sampled region corrupts the color signal, so
// the percentage is reported alongside each sample as a quality indicator.
type MotionMeter struct {
	threshold float64
	prev      gocv.Mat
	prevSize  image.Point
	mu        sync.Mutex
}

// NewMotionMeter creates a MotionMeter.
// The threshold is the percentage of changed pixels above which Moving reports true.
func NewMotionMeter(threshold float64) *MotionMeter {
	return &MotionMeter{
		threshold: threshold,
		prev:      gocv.NewMat(),
	}
}

// Measure compares roi of frame against the region seen on the previous call.
// It returns the percentage of changed pixels and false when no comparison was
// possible: first call, empty input, or a region whose size changed.
func (m *MotionMeter) Measure(frame *gocv.Mat, roi image.Rectangle) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return 0, false
	}

	roi = roi.Canon().Intersect(Bounds(frame))
	if roi.Empty() {
		m.clear()
		return 0, false
	}

	region := frame.Region(roi)
	defer region.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if region.Channels() > 1 {
		gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)
	} else {
		region.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: MotionBlurSize, Y: MotionBlurSize}, 0, 0, gocv.BorderDefault)

	size := roi.Size()
	if m.prev.Empty() || size != m.prevSize {
		m.prev.Close()
		m.prev = blurred
		m.prevSize = size
		return 0, false
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prev, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	m.prev.Close()
	m.prev = blurred

	return changed, true
}

// Moving reports whether percent exceeds the configured threshold.
func (m *MotionMeter) Moving(percent float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return percent > m.threshold
}

// Reset drops the baseline region.
func (m *MotionMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
}

// Close releases resources used by the meter.
func (m *MotionMeter) Close() {
	m.Reset()
}

func (m *MotionMeter) clear() {
	if !m.prev.Empty() {
		m.prev.Close()
		m.prev = gocv.NewMat()
	}
	m.prevSize = image.Point{}
}

// SetThreshold sets the Moving threshold.
// Values less than or equal to 0 are ignored.
func (m *MotionMeter) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.threshold = threshold
}
