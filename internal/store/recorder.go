package store

import (
	"time"

	"github.com/ayusman/pulsecam/internal/signal"
)

// BeginSession creates a session for a pipeline run and returns its ID.
func (s *Store) BeginSession(windowSize, bufferSize int, sampleRateHz float64) (string, error) {
	sess := &Session{
		WindowSize:   windowSize,
		BufferSize:   bufferSize,
		SampleRateHz: sampleRateHz,
	}
	if err := s.Sessions().Create(sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// RecordEstimate stores est under sessionID.
func (s *Store) RecordEstimate(sessionID string, est signal.Estimate) error {
	return s.Estimates().Create(FromSignal(sessionID, est))
}

// EndSession marks sessionID as finished now.
func (s *Store) EndSession(sessionID string) error {
	return s.Sessions().End(sessionID, time.Now().UTC())
}
