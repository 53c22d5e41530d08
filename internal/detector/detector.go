// Package detector provides face detection behind a small interface so the
// pipeline can run against OpenCV cascades, an external service or a mock.
package detector

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// ErrInvalidConfig is returned for detector configurations that cannot be used.
var ErrInvalidConfig = errors.New("invalid detector config")

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns face rectangles in full-frame
	// pixel coordinates. Returns an empty slice if no faces are detected.
	// Ordering is implementation defined; callers use the first entry.
	Detect(frame *gocv.Mat) ([]image.Rectangle, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for face detection.
type Config struct {
	// ResizeFactor scales frames down before detection (default: 0.25).
	ResizeFactor float64

	// ScaleFactor is the cascade image pyramid step (default: 1.1).
	ScaleFactor float64

	// MinNeighbors is the number of overlapping hits a candidate needs (default: 3).
	MinNeighbors int

	// MinSize is the smallest face considered, in downscaled pixels.
	MinSize image.Point
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ResizeFactor: 0.25,
		ScaleFactor:  1.1,
		MinNeighbors: 3,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.ResizeFactor <= 0 || c.ResizeFactor > 1:
		return fmt.Errorf("%w: resize factor must be in (0, 1]", ErrInvalidConfig)
	case c.ScaleFactor <= 1:
		return fmt.Errorf("%w: scale factor must be greater than 1", ErrInvalidConfig)
	case c.MinNeighbors < 0:
		return fmt.Errorf("%w: min neighbors must not be negative", ErrInvalidConfig)
	}
	return nil
}

// SortByArea orders rects largest first. Equal areas keep their input order.
func SortByArea(rects []image.Rectangle) {
	sort.SliceStable(rects, func(i, j int) bool {
		return area(rects[i]) > area(rects[j])
	})
}

func area(r image.Rectangle) int {
	s := r.Size()
	return s.X * s.Y
}
