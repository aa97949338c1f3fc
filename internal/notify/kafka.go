package notify

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to a Kafka topic keyed by order ID, so the
// events of one order keep their order within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, m Message) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.Key),
		Value: m.Body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(m.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("writing %s to kafka: %w", m.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
