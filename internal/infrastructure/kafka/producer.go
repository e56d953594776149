package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/example/allocation/internal/infrastructure/store"
	"github.com/segmentio/kafka-go"
)

// Producer writes stored batch events to the allocation topic. Messages are
// keyed by batch reference so every event of a batch lands on the same
// partition and the projector sees them in version order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer}
}

// Publish implements store.Publisher. Store events carry their type and
// version as headers so consumers can filter without decoding the payload.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if e, ok := event.(store.Event); ok {
		msg.Headers = eventHeaders(e)
		msg.Time = e.Timestamp
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func eventHeaders(e store.Event) []kafka.Header {
	return []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "aggregate_type", Value: []byte(e.AggregateType)},
		{Key: "version", Value: []byte(strconv.Itoa(e.Version))},
	}
}
