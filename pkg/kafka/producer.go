package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/joiedevivre/jasmine/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 50 * time.Millisecond
	}

	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           batchTimeout,
			RequiredAcks:           kafka.RequireOne,
			Compression:            kafka.Snappy,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
		topic:  cfg.Topic,
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Event is the envelope for every message jasmine publishes.
type Event struct {
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id"`
	SubjectID string          `json:"subject_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publish writes event keyed by its subject so events about one record stay ordered.
func (p *Producer) Publish(ctx context.Context, event *Event) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.SubjectID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).WithField("event_type", event.EventType).Error("Failed to publish event")
		return err
	}
	return nil
}
