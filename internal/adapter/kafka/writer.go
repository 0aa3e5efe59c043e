package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/incident-ingest-service/internal/config"
	"github.com/couchcryptid/incident-ingest-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Envelope is the notification wire format shared by every sink.
type Envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Writer publishes incident notifications to a Kafka topic.
// It implements domain.Publisher.
type Writer struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates an asynchronous producer for the configured topic.
// Delivery failures surface through logs and the publish error counter,
// never to the ingestion run.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &Writer{logger: logger, metrics: metrics}
	w.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion:   w.completion,
	}
	return w
}

// Publish enqueues one notification keyed by incident id.
func (w *Writer) Publish(ctx context.Context, event string, payload map[string]any) error {
	msg, err := serializeToMessage(event, payload)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) completion(msgs []kafkago.Message, err error) {
	if err == nil {
		return
	}
	w.metrics.PublishErrors.WithLabelValues("kafka").Add(float64(len(msgs)))
	w.logger.Error("kafka delivery failed", "messages", len(msgs), "topic", w.writer.Topic, "error", err)
}

// Close flushes pending messages.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage wraps the payload in an Envelope. The incident id is the
// key so updates to one incident stay ordered within a partition.
func serializeToMessage(event string, payload map[string]any) (kafkago.Message, error) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s: %w", event, err)
	}
	headers := []kafkago.Header{{Key: "event", Value: []byte(event)}}
	for _, k := range []string{"source", "category"} {
		if v, ok := payload[k].(string); ok && v != "" {
			headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
		}
	}
	return kafkago.Message{
		Key:     []byte(fmt.Sprint(payload["id"])),
		Value:   data,
		Headers: headers,
	}, nil
}
