package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Result is one scripted Detect outcome.
type Result struct {
	Faces []image.Rectangle
	Err   error
}

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	faces  []image.Rectangle
	err    error
	script []Result
	calls  int
	closed bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFaces sets the faces that will be returned by Detect.
func (m *MockDetector) SetFaces(faces ...image.Rectangle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Script queues results returned by successive Detect calls before falling
// back to the preset faces or error.
func (m *MockDetector) Script(results ...Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, results...)
}

// Detect returns the next scripted result, or the preset faces or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]image.Rectangle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return clone(next.Faces), next.Err
	}

	if m.err != nil {
		return nil, m.err
	}
	return clone(m.faces), nil
}

// Calls returns the number of Detect calls.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func clone(faces []image.Rectangle) []image.Rectangle {
	if faces == nil {
		return []image.Rectangle{}
	}
	out := make([]image.Rectangle, len(faces))
	copy(out, faces)
	return out
}
