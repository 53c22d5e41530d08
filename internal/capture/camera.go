// Package capture provides frame sources and pixel sampling using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings
const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when trying to read from a source that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// ErrEndOfStream is returned when a finite source has no more frames.
var ErrEndOfStream = errors.New("end of stream")

// Camera defines the interface for frame sources.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// device reads frames from any gocv.VideoCapture, opened lazily by open.
type device struct {
	open    func() (*gocv.VideoCapture, error)
	live    bool
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a Camera for the given capture device ID.
func NewCamera(deviceID int) Camera {
	return &device{
		open: func() (*gocv.VideoCapture, error) {
			return gocv.OpenVideoCapture(deviceID)
		},
		live: true,
		fps:  DefaultFPS,
	}
}

// Open opens the source for capturing frames.
// Live cameras are set to 640x480 with a single-frame driver buffer so slow
// readers always get a fresh frame.
func (c *device) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := c.open()
	if err != nil {
		return err
	}

	if c.live {
		capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
		capture.Set(gocv.VideoCaptureBufferSize, 1)
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the source and releases resources.
func (c *device) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame.
// The caller is responsible for closing the returned Mat.
func (c *device) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		if !c.live {
			return nil, ErrEndOfStream
		}
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		if !c.live {
			return nil, ErrEndOfStream
		}
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// SetFPS sets the requested capture rate.
// Values less than or equal to 0 are ignored.
func (c *device) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil && c.live {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the requested capture rate.
func (c *device) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the source is currently open.
func (c *device) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// VideoFile is a Camera backed by a recorded video.
// ReadFrame returns ErrEndOfStream after the last frame.
type VideoFile struct {
	*device
	path string
}

// NewVideoFile creates a frame source for the video at path.
func NewVideoFile(path string) *VideoFile {
	return &VideoFile{
		device: &device{
			open: func() (*gocv.VideoCapture, error) {
				vc, err := gocv.VideoCaptureFile(path)
				if err != nil {
					return nil, fmt.Errorf("open video %s: %w", path, err)
				}
				return vc, nil
			},
			fps: DefaultFPS,
		},
		path: path,
	}
}

// Path returns the video path.
func (v *VideoFile) Path() string {
	return v.path
}

// SourceFPS returns the frame rate recorded in the container, or 0 if unknown.
func (v *VideoFile) SourceFPS() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture == nil {
		return 0
	}
	fps := v.capture.Get(gocv.VideoCaptureFPS)
	if math.IsNaN(fps) || fps < 0 {
		return 0
	}
	return fps
}

// FrameCount returns the number of frames reported by the container, or 0 if unknown.
func (v *VideoFile) FrameCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture == nil {
		return 0
	}
	n := v.capture.Get(gocv.VideoCaptureFrameCount)
	if math.IsNaN(n) || n < 0 {
		return 0
	}
	return int(n)
}
