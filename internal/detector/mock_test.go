package detector

import (
	"errors"
	"image"
	"testing"
)

func TestMockDetector(t *testing.T) {
	t.Run("empty by default", func(t *testing.T) {
		m := NewMockDetector()
		faces, err := m.Detect(nil)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if faces == nil || len(faces) != 0 {
			t.Errorf("Detect() = %v, want empty non-nil slice", faces)
		}
	})

	t.Run("preset faces are copied", func(t *testing.T) {
		m := NewMockDetector()
		m.SetFaces(image.Rect(0, 0, 10, 10))

		faces, _ := m.Detect(nil)
		faces[0] = image.Rect(5, 5, 6, 6)

		again, _ := m.Detect(nil)
		if again[0] != image.Rect(0, 0, 10, 10) {
			t.Errorf("preset faces were mutated: %v", again[0])
		}
		if m.Calls() != 2 {
			t.Errorf("Calls() = %d, want 2", m.Calls())
		}
	})

	t.Run("error", func(t *testing.T) {
		m := NewMockDetector()
		boom := errors.New("boom")
		m.SetError(boom)

		if _, err := m.Detect(nil); !errors.Is(err, boom) {
			t.Errorf("Detect() error = %v, want boom", err)
		}
	})

	t.Run("script then fallback", func(t *testing.T) {
		m := NewMockDetector()
		m.SetFaces(image.Rect(0, 0, 1, 1))
		boom := errors.New("boom")
		m.Script(
			Result{Faces: []image.Rectangle{image.Rect(0, 0, 5, 5)}},
			Result{Err: boom},
			Result{},
		)

		faces, _ := m.Detect(nil)
		if len(faces) != 1 || faces[0] != image.Rect(0, 0, 5, 5) {
			t.Errorf("call 1 = %v", faces)
		}
		if _, err := m.Detect(nil); !errors.Is(err, boom) {
			t.Errorf("call 2 error = %v", err)
		}
		if faces, _ := m.Detect(nil); len(faces) != 0 {
			t.Errorf("call 3 = %v, want no faces", faces)
		}
		if faces, _ := m.Detect(nil); len(faces) != 1 || faces[0] != image.Rect(0, 0, 1, 1) {
			t.Errorf("call 4 = %v, want preset", faces)
		}
	})

	t.Run("close", func(t *testing.T) {
		m := NewMockDetector()
		if err := m.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if !m.Closed() {
			t.Error("Closed() should be true")
		}
	})
}
