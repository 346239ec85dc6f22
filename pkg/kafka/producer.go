package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ResolutionEvent describes a change to the resolution state of a call or
// account. Published on the output topic for downstream consumers (CRM
// sync-back, insight pipelines).
type ResolutionEvent struct {
	EventType  string          `json:"event_type"` // call.resolved, call.auto_resolved, calls.dismissed, account.created, account.merged
	TenantID   string          `json:"tenant_id"`
	CallID     string          `json:"call_id,omitempty"`
	AccountID  string          `json:"account_id,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (p *Producer) toMessage(event *ResolutionEvent) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	// Key by tenant so every event of a tenant lands on the same partition
	// and downstream consumers see its operations in order.
	return kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.TenantID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
		},
	}, nil
}

// PublishResolutionEvent publishes a resolution event to Kafka
func (p *Producer) PublishResolutionEvent(ctx context.Context, event *ResolutionEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishResolutionEvent")
	defer span.End()

	msg, err := p.toMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish resolution event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"call_id":    event.CallID,
		"account_id": event.AccountID,
	}).Debug("Published resolution event")

	return nil
}

// PublishResolutionEvents publishes multiple resolution events in a batch
func (p *Producer) PublishResolutionEvents(ctx context.Context, events []*ResolutionEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishResolutionEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := p.toMessage(event)
		if err != nil {
			return err
		}
		messages[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish resolution events batch")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published resolution events batch")

	return nil
}
