// Package stream publishes heart-rate estimates to NATS and MQTT.
package stream

import (
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject estimates are published on.
const DefaultSubject = "pulsecam.bpm"

func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("pulsecam"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}
