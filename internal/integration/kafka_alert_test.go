//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aurora-alert-service/internal/domain"
	"github.com/couchcryptid/aurora-alert-service/internal/engine"
	"github.com/couchcryptid/aurora-alert-service/internal/notify"
	"github.com/couchcryptid/aurora-alert-service/internal/observability"
	"github.com/couchcryptid/aurora-alert-service/internal/store"
)

const testAlertTopic = "test-aurora-alerts"

// publishedAlert holds a deserialized message read from the alert topic.
type publishedAlert struct {
	Payload struct {
		notify.Alert
		FiredAt time.Time `json:"fired_at"`
	}
	Key     string
	Headers map[string]string
}

// readAlert reads a single message from the consumer and deserializes it.
func readAlert(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedAlert {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from alert topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var pa publishedAlert
	require.NoError(t, json.Unmarshal(msg.Value, &pa.Payload), "unmarshal alert message")
	pa.Key = string(msg.Key)
	pa.Headers = headers
	return pa
}

// TestKafkaPublisherRoundTrip verifies that a sent alert arrives on the topic
// with its payload, partition key, and headers intact.
func TestKafkaPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	publisher := notify.NewKafkaPublisher([]string{broker}, testAlertTopic, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	alert := notify.Alert{
		Contact:       "ida@example.com",
		DisplayName:   "Ida",
		LocationLabel: "Tromsø",
		Intensity:     14,
		Kp:            6,
	}
	require.NoError(t, publisher.Send(ctx, alert))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	pa := readAlert(ctx, t, consumer)
	assert.Equal(t, "ida@example.com", pa.Key)
	assert.Equal(t, alert, pa.Payload.Alert)
	assert.False(t, pa.Payload.FiredAt.IsZero(), "fired_at should be set")

	assert.Equal(t, "Tromsø", pa.Headers["location_label"])
	require.Contains(t, pa.Headers, "fired_at")
	_, err := time.Parse(time.RFC3339, pa.Headers["fired_at"])
	assert.NoError(t, err, "fired_at header should be valid RFC3339")
}

// TestEvaluatorPublishesToKafka wires the evaluator against a real SQLite
// store and a real Kafka broker: a subscription over threshold produces
// exactly one alert message, and a second pass inside the re-alert window
// produces none.
func TestEvaluatorPublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	subs, err := store.Open(filepath.Join(t.TempDir(), "subs.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = subs.Close() })

	_, err = subs.Upsert(ctx, "nils@example.com", "Nils", 69.65, 18.96, "Tromsø", 5)
	require.NoError(t, err)

	publisher := notify.NewKafkaPublisher([]string{broker}, testAlertTopic, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	metrics := observability.NewMetricsForTesting()
	evaluator := engine.NewEvaluator(publisher, subs, time.Hour, discardLogger(), metrics)

	grid := &domain.Grid{
		GeneratedAt: time.Now().UTC(),
		Samples: []domain.GridSample{
			{Lat: 69.5, Lon: 19.0, Intensity: 40},
			{Lat: 40.0, Lon: -105.0, Intensity: 1},
		},
	}

	listed, err := subs.ListAll(ctx)
	require.NoError(t, err)
	decisions, err := evaluator.EvaluateAll(ctx, listed, grid)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Fire)
	assert.Equal(t, domain.ReasonFired, decisions[0].Reason)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	pa := readAlert(ctx, t, consumer)
	assert.Equal(t, "nils@example.com", pa.Key)
	assert.Equal(t, "Nils", pa.Payload.DisplayName)
	assert.Equal(t, "Tromsø", pa.Payload.LocationLabel)
	assert.Equal(t, 40, pa.Payload.Intensity)
	assert.Equal(t, 5, pa.Payload.Kp)

	// Second pass inside the re-alert window: suppressed, nothing published.
	listed, err = subs.ListAll(ctx)
	require.NoError(t, err)
	decisions, err = evaluator.EvaluateAll(ctx, listed, grid)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Fire)
	assert.Equal(t, domain.ReasonDedupWindow, decisions[0].Reason)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on alert topic")
}
