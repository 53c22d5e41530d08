package stream

import (
	"encoding/json"
	"time"

	"github.com/ayusman/pulsecam/internal/signal"
	"github.com/nats-io/nats.go"
)

// Message is the JSON payload of one published estimate.
type Message struct {
	SessionID string    `json:"session_id,omitempty"`
	BPM       float64   `json:"bpm"`
	Channel   string    `json:"channel"`
	RedBPM    float64   `json:"red_bpm"`
	GreenBPM  float64   `json:"green_bpm"`
	BlueBPM   float64   `json:"blue_bpm"`
	At        time.Time `json:"at"`
}

// NewMessage builds the payload for est.
func NewMessage(sessionID string, est signal.Estimate, at time.Time) Message {
	return Message{
		SessionID: sessionID,
		BPM:       est.BPM,
		Channel:   est.Channel.String(),
		RedBPM:    est.Red.BPM,
		GreenBPM:  est.Green.BPM,
		BlueBPM:   est.Blue.BPM,
		At:        at.UTC(),
	}
}

// Publisher sends estimates on a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	now     func() time.Time
}

// NewPublisher returns a publisher on subject, or DefaultSubject when empty.
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject, now: time.Now}
}

// Subject returns the subject estimates are published on.
func (p *Publisher) Subject() string {
	return p.subject
}

// Publish encodes est and sends it.
func (p *Publisher) Publish(sessionID string, est signal.Estimate) error {
	b, err := json.Marshal(NewMessage(sessionID, est, p.now()))
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, b)
}
