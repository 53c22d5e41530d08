// Package signal accumulates per-frame color samples and estimates heart rate
// from the dominant frequency of their spectrum.
package signal

// DefaultCapacity is the number of color samples kept for spectral analysis.
const DefaultCapacity = 80

// Color holds per-channel mean intensities in the source pixel depth.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// RingBuffer is a fixed-capacity FIFO of color samples. A nil entry marks a
// tick in which no region could be sampled.
//
// RingBuffer is not safe for concurrent use.
type RingBuffer struct {
	capacity int
	samples  []*Color
}

// NewRingBuffer creates a buffer holding at most capacity samples.
// Capacities less than 1 are treated as 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		capacity: capacity,
		samples:  make([]*Color, 0, capacity),
	}
}

// Push appends a sample, overwriting the oldest once the buffer is full.
// Pass nil to record a gap.
func (b *RingBuffer) Push(c *Color) {
	var entry *Color
	if c != nil {
		v := *c
		entry = &v
	}

	if len(b.samples) >= b.capacity {
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:b.capacity-1]
	}
	b.samples = append(b.samples, entry)
}

// Complete reports whether the buffer is full and holds no gaps.
// A single gap anywhere in the window invalidates it: gappy signals are
// rejected rather than interpolated.
func (b *RingBuffer) Complete() bool {
	if len(b.samples) != b.capacity {
		return false
	}
	for _, s := range b.samples {
		if s == nil {
			return false
		}
	}
	return true
}

// Channels splits a complete buffer into three oldest-first channel series.
// It returns ok=false when the buffer is not complete.
func (b *RingBuffer) Channels() (r, g, bl []float64, ok bool) {
	if !b.Complete() {
		return nil, nil, nil, false
	}

	r = make([]float64, len(b.samples))
	g = make([]float64, len(b.samples))
	bl = make([]float64, len(b.samples))
	for i, s := range b.samples {
		r[i] = s.R
		g[i] = s.G
		bl[i] = s.B
	}
	return r, g, bl, true
}

// Samples returns an oldest-first copy of the raw history, gaps included.
func (b *RingBuffer) Samples() []*Color {
	out := make([]*Color, len(b.samples))
	for i, s := range b.samples {
		if s != nil {
			v := *s
			out[i] = &v
		}
	}
	return out
}

// Len returns the number of samples held.
func (b *RingBuffer) Len() int {
	return len(b.samples)
}

// Capacity returns the buffer capacity.
func (b *RingBuffer) Capacity() int {
	return b.capacity
}

// Reset drops every sample.
func (b *RingBuffer) Reset() {
	b.samples = b.samples[:0]
}
