package app

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// Queue errors. A rejected frame is always closed by the queue.
var (
	ErrQueueFull   = errors.New("frame queue is full")
	ErrQueueClosed = errors.New("frame queue is closed")
)

// FrameQueue hands frames from the capture goroutine to the single
// processing goroutine. Offer never blocks: when the queue is full the new
// frame is dropped, so queued frames keep their order.
type FrameQueue struct {
	ch      chan *gocv.Mat
	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewFrameQueue creates a queue holding up to size pending frames.
// Sizes less than 1 are treated as 1.
func NewFrameQueue(size int) *FrameQueue {
	if size < 1 {
		size = 1
	}
	return &FrameQueue{ch: make(chan *gocv.Mat, size)}
}

// Offer enqueues frame. On failure the frame is closed.
func (q *FrameQueue) Offer(frame *gocv.Mat) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		frame.Close()
		return ErrQueueClosed
	}

	select {
	case q.ch <- frame:
		return nil
	default:
		q.dropped++
		frame.Close()
		return ErrQueueFull
	}
}

// Frames is the receive side of the queue. It is closed by Close.
func (q *FrameQueue) Frames() <-chan *gocv.Mat {
	return q.ch
}

// Len returns the number of pending frames.
func (q *FrameQueue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of frames rejected because the queue was full.
func (q *FrameQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops accepting frames and releases any still pending.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)

	for frame := range q.ch {
		frame.Close()
	}
}
