package notify

import (
	"context"

	"go.uber.org/zap"
)

// Publisher sends a message to a broker.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
	Close() error
}

// LogPublisher writes messages to the log. It is used when no broker is
// configured.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher returns a LogPublisher writing to lg.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

func (p *LogPublisher) Publish(_ context.Context, m Message) error {
	p.lg.Info("Order event",
		zap.String("key", m.Key),
		zap.String("type", m.Type),
		zap.ByteString("body", m.Body),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
