package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
)

const defaultMQTTTimeout = 10 * time.Second

// Publisher sends one payload to an MQTT topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQTTSink publishes summaries as JSON
type MQTTSink struct {
	publisher Publisher
	topic     string
}

// NewMQTTSink creates a sink publishing to topic
func NewMQTTSink(publisher Publisher, topic string) *MQTTSink {
	return &MQTTSink{publisher: publisher, topic: topic}
}

// Name implements Sink
func (s *MQTTSink) Name() string { return "mqtt" }

// mqttPayload adds fields that do not marshal directly from BatchSummary
type mqttPayload struct {
	*BatchSummary
	DurationSeconds float64 `json:"duration_seconds"`
	Timestamp       string  `json:"timestamp"`
}

// Payload renders the JSON message for summary
func Payload(summary *BatchSummary) ([]byte, error) {
	return json.Marshal(mqttPayload{
		BatchSummary:    summary,
		DurationSeconds: summary.Duration.Seconds(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

// Send implements Sink
func (s *MQTTSink) Send(ctx context.Context, summary *BatchSummary) error {
	payload, err := Payload(summary)
	if err != nil {
		return errors.New(err).
			Component("notify").
			Category(errors.CategoryProcessing).
			Context("sink", "mqtt").
			Build()
	}
	return s.publisher.Publish(ctx, s.topic, payload)
}

// PahoPublisher connects for each publish. Runs notify once at the end, so
// no connection is kept open between them.
type PahoPublisher struct {
	settings conf.MQTTSettings
}

// NewPahoPublisher creates a publisher for the configured broker
func NewPahoPublisher(settings *conf.MQTTSettings) *PahoPublisher {
	return &PahoPublisher{settings: *settings}
}

// Publish implements Publisher
func (p *PahoPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	timeout := p.settings.Timeout
	if timeout <= 0 {
		timeout = defaultMQTTTimeout
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.settings.Broker)
	opts.SetClientID(p.settings.ClientID)
	opts.SetUsername(p.settings.Username)
	opts.SetPassword(p.settings.Password)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if err := waitToken(token, timeout, "connect"); err != nil {
		return err
	}
	defer client.Disconnect(250)

	return waitToken(client.Publish(topic, 1, false, payload), timeout, "publish")
}

func waitToken(token mqtt.Token, timeout time.Duration, operation string) error {
	if !token.WaitTimeout(timeout) {
		return errors.New(fmt.Errorf("mqtt %s timed out after %s", operation, timeout)).
			Component("notify").
			Category(errors.CategoryTimeout).
			Context("operation", operation).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("notify").
			Category(errors.CategoryNetwork).
			Context("operation", operation).
			Build()
	}
	return nil
}
