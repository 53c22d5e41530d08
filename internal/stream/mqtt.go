package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/pulsecam/internal/signal"
)

// DefaultTopic is the MQTT topic estimates are published on.
const DefaultTopic = "pulsecam/bpm"

// publishTimeout bounds the wait for a QoS 1 acknowledgement.
const publishTimeout = 2 * time.Second

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Printf("MQTT connection lost: %v", err)
}

// ConnectMQTT connects to broker (for example tcp://localhost:1883) with
// automatic reconnects.
func ConnectMQTT(broker string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("pulsecam-%d", time.Now().Unix()))
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.OnConnectionLost = connectLostHandler

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

// MQTTPublisher sends estimates to an MQTT topic with QoS 1.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	now    func() time.Time
}

// NewMQTTPublisher returns a publisher on topic, or DefaultTopic when empty.
func NewMQTTPublisher(client mqtt.Client, topic string) *MQTTPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTPublisher{client: client, topic: topic, now: time.Now}
}

// Topic returns the topic estimates are published on.
func (p *MQTTPublisher) Topic() string {
	return p.topic
}

// Publish encodes est and waits for the broker to accept it.
func (p *MQTTPublisher) Publish(sessionID string, est signal.Estimate) error {
	b, err := json.Marshal(NewMessage(sessionID, est, p.now()))
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 1, false, b)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", p.topic)
	}
	return token.Error()
}
