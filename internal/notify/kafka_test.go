package notify

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), Message{Key: "o-1", Type: "order.created", Body: []byte(`{}`)}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "o-1", string(w.msgs[0].Key))
	assert.Equal(t, `{}`, string(w.msgs[0].Value))
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte("order.created")}}, w.msgs[0].Headers)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	broker := errors.New("broker down")
	p := &KafkaPublisher{writer: &recordingWriter{err: broker}}

	err := p.Publish(context.Background(), Message{Key: "o-1", Type: "order.created"})
	require.ErrorIs(t, err, broker)
	assert.Contains(t, err.Error(), "order.created")
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "giftkart.orders")
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "giftkart.orders", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
