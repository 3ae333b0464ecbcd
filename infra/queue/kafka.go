package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/mstgnz/kazapay/infra/metrics"
	"github.com/mstgnz/kazapay/provider"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the settlement audit record published for downstream consumers
type Event struct {
	ID          string         `json:"id"`
	Gateway     string         `json:"gateway"`
	Description string         `json:"description"`
	OrderID     string         `json:"order_id,omitempty"`
	Data        map[string]any `json:"data"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Publisher streams audit entries to a Kafka topic. Messages are keyed by
// order id so every event of one transaction lands on the same partition.
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher creates a publisher for brokers and topic. Writes are async,
// a slow or unreachable broker never holds up the callback response.
// Delivery failures are logged and counted.
func NewPublisher(brokers []string, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             deliveryReport(topic),
	}
	return &Publisher{writer: w, topic: topic}
}

func deliveryReport(topic string) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		metrics.RecordAuditFailure("kafka")
		logger.Warn("Settlement events not delivered", logger.LogContext{
			Fields: map[string]any{"topic": topic, "messages": len(msgs), "error": err.Error()},
		})
	}
}

// AuditLog implements provider.AuditLogger
func (p *Publisher) AuditLog(ctx context.Context, gateway string, data map[string]any, description string) error {
	msg, err := buildMessage(gateway, data, description, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func buildMessage(gateway string, data map[string]any, description string, now time.Time) (kafka.Message, error) {
	event := Event{
		ID:          uuid.NewString(),
		Gateway:     gateway,
		Description: description,
		Data:        provider.RedactAuditData(data),
		Timestamp:   now,
	}
	if v, ok := data["order_id"]; ok {
		event.OrderID = fmt.Sprint(v)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}

	key := event.OrderID
	if key == "" {
		key = gateway
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "gateway", Value: []byte(gateway)},
			{Key: "description", Value: []byte(description)},
		},
	}, nil
}
