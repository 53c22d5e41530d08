package capture

import (
	"errors"
	"image"

	"github.com/ayusman/pulsecam/internal/signal"
	"gocv.io/x/gocv"
)

// Sampling errors.
var (
	ErrEmptyFrame        = errors.New("frame is empty")
	ErrEmptyRegion       = errors.New("region has zero area")
	ErrRegionOutOfBounds = errors.New("region lies outside the frame")
)

// Bounds returns the pixel bounds of frame.
func Bounds(frame *gocv.Mat) image.Rectangle {
	if frame == nil {
		return image.Rectangle{}
	}
	return image.Rect(0, 0, frame.Cols(), frame.Rows())
}

// MeanColor averages the pixels of frame inside roi.
// Frames are expected in OpenCV BGR(A) order; single-channel frames report
// the same value on every channel.
func MeanColor(frame *gocv.Mat, roi image.Rectangle) (signal.Color, error) {
	if frame == nil || frame.Empty() {
		return signal.Color{}, ErrEmptyFrame
	}

	roi = roi.Canon()
	if roi.Empty() {
		return signal.Color{}, ErrEmptyRegion
	}
	if !roi.In(Bounds(frame)) {
		return signal.Color{}, ErrRegionOutOfBounds
	}

	region := frame.Region(roi)
	defer region.Close()

	m := region.Mean()
	if frame.Channels() == 1 {
		return signal.Color{R: m.Val1, G: m.Val1, B: m.Val1}, nil
	}
	return signal.Color{R: m.Val3, G: m.Val2, B: m.Val1}, nil
}
