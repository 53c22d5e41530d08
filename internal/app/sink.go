package app

import (
	"errors"
	"log"
	"sync"

	"github.com/ayusman/pulsecam/internal/signal"
)

// DefaultSinkSize is the number of estimates waiting to be recorded and published.
const DefaultSinkSize = 8

// Sink errors.
var (
	ErrSinkFull   = errors.New("estimate sink is full")
	ErrSinkClosed = errors.New("estimate sink is closed")
)

type outbound struct {
	sessionID string
	est       signal.Estimate
}

// EstimateSink records and publishes estimates on its own goroutine. Offer
// never blocks: when the sink is full the new estimate is dropped.
type EstimateSink struct {
	recorder  Recorder
	publisher Publisher

	ch   chan outbound
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewEstimateSink starts a sink holding up to size pending estimates.
// Either recorder or publisher may be nil.
func NewEstimateSink(size int, recorder Recorder, publisher Publisher) *EstimateSink {
	if size < 1 {
		size = 1
	}
	s := &EstimateSink{
		recorder:  recorder,
		publisher: publisher,
		ch:        make(chan outbound, size),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Offer queues est for sessionID.
func (s *EstimateSink) Offer(sessionID string, est signal.Estimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.ch <- outbound{sessionID: sessionID, est: est}:
		return nil
	default:
		s.dropped++
		return ErrSinkFull
	}
}

// Dropped returns the number of estimates rejected because the sink was full.
func (s *EstimateSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops accepting estimates and waits for pending ones to be sent.
func (s *EstimateSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()

	<-s.done
}

func (s *EstimateSink) run() {
	defer close(s.done)

	for out := range s.ch {
		if s.recorder != nil && out.sessionID != "" {
			if err := s.recorder.RecordEstimate(out.sessionID, out.est); err != nil {
				log.Printf("Error recording estimate: %v", err)
			}
		}

		if s.publisher != nil {
			if err := s.publisher.Publish(out.sessionID, out.est); err != nil {
				log.Printf("Error publishing estimate: %v", err)
			}
		}
	}
}
