package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer streams order change events to a durable topic, keyed by order id
// so every change for one order lands on the same partition.
type Producer struct {
	Writer MessageWriter
	Topic  string
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topic: topic, Logger: log}
}

func encodeChange(ev models.ChangeEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	key := ev.OrderID()
	if key == "" {
		key = ev.Table
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "table", Value: []byte(ev.Table)},
		},
		Time: ev.CommitTime,
	}, nil
}

// Publish writes one change event.
func (p *Producer) Publish(ctx context.Context, ev models.ChangeEvent) error {
	msg, err := encodeChange(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", p.Topic, err)
	}
	if p.Logger != nil {
		p.Logger.LogKafka("PUBLISH", p.Topic, fmt.Sprintf("%s %s %s", ev.Type, ev.Table, string(msg.Key)))
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
