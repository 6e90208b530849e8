package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// KafkaPublisher emits fired alerts to a Kafka topic, leaving delivery
// (mail, SMS, push) to downstream consumers.
type KafkaPublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a producer for the alert topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// Send publishes one alert event. The write waits for full acknowledgement so
// a nil return really means the alert reached the topic.
func (p *KafkaPublisher) Send(ctx context.Context, alert Alert) error {
	msg, err := serializeAlert(alert, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// serializeAlert marshals an Alert into a Kafka message keyed by contact so a
// subscriber's alerts stay ordered within a partition.
func serializeAlert(alert Alert, firedAt time.Time) (kafkago.Message, error) {
	payload := struct {
		Alert
		FiredAt time.Time `json:"fired_at"`
	}{Alert: alert, FiredAt: firedAt}

	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(alert.Contact),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "location_label", Value: []byte(alert.LocationLabel)},
			{Key: "fired_at", Value: []byte(firedAt.Format(time.RFC3339))},
		},
	}, nil
}
