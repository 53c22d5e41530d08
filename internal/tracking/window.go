package tracking

// DefaultWindowSize is the number of recent detections averaged into the smoothed face.
const DefaultWindowSize = 10

// FaceWindow holds the most recent per-frame detection results.
// A nil entry records a frame in which no face was found.
//
// FaceWindow is not safe for concurrent use.
type FaceWindow struct {
	size    int
	entries []*Rect
}

// NewFaceWindow creates a window holding at most size samples.
// Sizes less than 1 are treated as 1.
func NewFaceWindow(size int) *FaceWindow {
	if size < 1 {
		size = 1
	}
	return &FaceWindow{
		size:    size,
		entries: make([]*Rect, 0, size),
	}
}

// Push appends a detection, evicting the oldest entry once the window is full.
// The rectangle is copied so callers may reuse it.
func (w *FaceWindow) Push(face *Rect) {
	var entry *Rect
	if face != nil {
		c := *face
		entry = &c
	}

	if len(w.entries) >= w.size {
		copy(w.entries, w.entries[1:])
		w.entries = w.entries[:w.size-1]
	}
	w.entries = append(w.entries, entry)
}

// Smoothed returns the field-wise mean of every detection currently held.
// It returns false when the window holds no detection at all.
func (w *FaceWindow) Smoothed() (Rect, bool) {
	var sum Rect
	n := 0
	for _, e := range w.entries {
		if e == nil {
			continue
		}
		sum.X += e.X
		sum.Y += e.Y
		sum.Width += e.Width
		sum.Height += e.Height
		n++
	}

	if n == 0 {
		return Rect{}, false
	}

	k := float64(n)
	return Rect{X: sum.X / k, Y: sum.Y / k, Width: sum.Width / k, Height: sum.Height / k}, true
}

// Detections returns how many entries in the window hold a rectangle.
func (w *FaceWindow) Detections() int {
	n := 0
	for _, e := range w.entries {
		if e != nil {
			n++
		}
	}
	return n
}

// Len returns the number of entries currently held.
func (w *FaceWindow) Len() int {
	return len(w.entries)
}

// Size returns the window capacity.
func (w *FaceWindow) Size() int {
	return w.size
}

// Reset drops every entry.
func (w *FaceWindow) Reset() {
	w.entries = w.entries[:0]
}
