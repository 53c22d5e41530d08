package stream

import (
	"errors"
	"testing"

	"github.com/ayusman/pulsecam/internal/signal"
)

type countingPublisher struct {
	calls int
	err   error
}

func (c *countingPublisher) Publish(string, signal.Estimate) error {
	c.calls++
	return c.err
}

func TestMulti_Publish(t *testing.T) {
	errDown := errors.New("broker down")
	a := &countingPublisher{}
	b := &countingPublisher{err: errDown}
	c := &countingPublisher{}

	err := Multi{a, b, c}.Publish("s", signal.Estimate{BPM: 70})

	if !errors.Is(err, errDown) {
		t.Errorf("Publish() error = %v, want %v", err, errDown)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Errorf("calls = %d %d %d, want every publisher called once", a.calls, b.calls, c.calls)
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := (Multi{}).Publish("s", signal.Estimate{}); err != nil {
		t.Errorf("Publish() error = %v, want nil", err)
	}
}

func TestNewMQTTPublisher_DefaultTopic(t *testing.T) {
	if p := NewMQTTPublisher(nil, ""); p.Topic() != DefaultTopic {
		t.Errorf("Topic() = %q, want %q", p.Topic(), DefaultTopic)
	}
}
