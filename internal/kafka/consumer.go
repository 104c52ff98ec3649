package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer turns the order change topic into a change subscription. Each
// subscription reads the topic from its tail without a consumer group, so
// every client sees every event.
type Consumer struct {
	NewReader func() MessageReader
	Topic     string
	Logger    *logger.Logger
}

func NewConsumer(brokers []string, topic string, log *logger.Logger) *Consumer {
	return &Consumer{
		Topic:  topic,
		Logger: log,
		NewReader: func() MessageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:     brokers,
				Topic:       topic,
				Partition:   0,
				StartOffset: kafka.LastOffset,
				MinBytes:    1,
				MaxBytes:    10e6, // 10MB
			})
		},
	}
}

// Subscribe starts a reader and relays decoded events until ctx is done or
// the reader fails. The returned channel is closed in both cases.
func (c *Consumer) Subscribe(ctx context.Context, orderID string) (<-chan models.ChangeEvent, error) {
	reader := c.NewReader()
	out := make(chan models.ChangeEvent, 16)

	go func() {
		defer close(out)
		defer reader.Close()

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					c.Logger.Warn("KAFKA", fmt.Sprintf("Change subscription on %s ended: %v", c.Topic, err))
				}
				return
			}

			var ev models.ChangeEvent
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				c.Logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal change event: %v", err))
				continue
			}
			if orderID != "" && ev.OrderID() != orderID {
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			default:
				// receiver is behind; it will catch up on its next poll
			}
		}
	}()

	return out, nil
}
