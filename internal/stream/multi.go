package stream

import (
	"errors"

	"github.com/ayusman/pulsecam/internal/signal"
)

// Estimator is anything estimates can be published to.
type Estimator interface {
	Publish(sessionID string, est signal.Estimate) error
}

// Multi publishes to every member and joins their errors.
type Multi []Estimator

// Publish sends est to each publisher even when an earlier one fails.
func (m Multi) Publish(sessionID string, est signal.Estimate) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(sessionID, est); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
