package detector

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

// CascadeFile is the OpenCV frontal face model loaded by default.
const CascadeFile = "haarcascade_frontalface_default.xml"

// ErrCascadeNotFound is returned when no cascade model can be located.
var ErrCascadeNotFound = errors.New(CascadeFile + " not found")

// CascadeDetector implements Detector with an OpenCV Haar cascade.
// Frames are downscaled by Config.ResizeFactor with nearest-neighbour
// interpolation and converted to gray before detection. Results are scaled
// back to full-frame coordinates and ordered by area, largest first.
type CascadeDetector struct {
	config     Config
	classifier gocv.CascadeClassifier
	path       string
	mu         sync.Mutex
	closed     bool
}

// NewCascadeDetector loads the cascade at path. An empty path searches the
// usual install locations for CascadeFile.
func NewCascadeDetector(path string, config Config) (*CascadeDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if path == "" {
		path = FindCascade()
		if path == "" {
			return nil, ErrCascadeNotFound
		}
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s: failed", path)
	}

	return &CascadeDetector{
		config:     config,
		classifier: classifier,
		path:       path,
	}, nil
}

// Path returns the loaded cascade file.
func (d *CascadeDetector) Path() string {
	return d.path
}

// Detect runs the cascade on a downscaled gray copy of frame.
func (d *CascadeDetector) Detect(frame *gocv.Mat) ([]image.Rectangle, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("detector is closed")
	}

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(*frame, &small, image.Point{}, d.config.ResizeFactor, d.config.ResizeFactor, gocv.InterpolationNearestNeighbor)
	if small.Empty() {
		return []image.Rectangle{}, nil
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if small.Channels() > 1 {
		gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)
	} else {
		small.CopyTo(&gray)
	}

	found := d.classifier.DetectMultiScaleWithParams(gray, d.config.ScaleFactor, d.config.MinNeighbors, 0, d.config.MinSize, image.Point{})

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	faces := make([]image.Rectangle, 0, len(found))
	for _, r := range found {
		full := rescale(r, d.config.ResizeFactor).Intersect(bounds)
		if !full.Empty() {
			faces = append(faces, full)
		}
	}
	SortByArea(faces)

	return faces, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.classifier.Close()
}

// rescale maps a rectangle found on the downscaled frame back to full size.
func rescale(r image.Rectangle, factor float64) image.Rectangle {
	scale := func(v int) int {
		return int(math.Round(float64(v) / factor))
	}
	return image.Rect(scale(r.Min.X), scale(r.Min.Y), scale(r.Max.X), scale(r.Max.Y))
}

// FindCascade looks for CascadeFile in the working directory, next to the
// executable and in common OpenCV install locations.
func FindCascade() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("data", CascadeFile),
		filepath.Join("..", "data", CascadeFile),
		filepath.Join(execDir, "data", CascadeFile),
		filepath.Join(os.Getenv("HOME"), ".pulsecam", CascadeFile),
		filepath.Join("/usr/share/opencv4/haarcascades", CascadeFile),
		filepath.Join("/usr/local/share/opencv4/haarcascades", CascadeFile),
		filepath.Join("/opt/homebrew/share/opencv4/haarcascades", CascadeFile),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
