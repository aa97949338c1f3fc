package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/streadway/amqp"
)

// AMQPPublisher publishes events to a durable RabbitMQ queue.
type AMQPPublisher struct {
	mu      sync.Mutex // amqp.Channel is not safe for concurrent publishing
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewAMQPPublisher connects to url and declares queue.
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declaring queue %q: %w", queue, err)
	}
	return &AMQPPublisher{conn: conn, channel: ch, queue: queue}, nil
}

// Publish sends m through the default exchange. The amqp client has no
// context support, so ctx is only checked before publishing.
func (p *AMQPPublisher) Publish(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Type:         m.Type,
		MessageId:    m.Key,
		Body:         m.Body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publishing %s to rabbitmq: %w", m.Type, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	chErr := p.channel.Close()
	if err := p.conn.Close(); err != nil {
		return errors.Wrap(err, "close connection")
	}
	if chErr != nil {
		return errors.Wrap(chErr, "close channel")
	}
	return nil
}
