package eventbus

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaProducerRoutesTopics(t *testing.T) {
	writer := &captureWriter{}
	producer := NewKafkaProducerWithWriter(writer, "events", "events.dlq")

	require.NoError(t, producer.PublishEvent(context.Background(), []byte("k"), []byte("v"),
		kafka.Header{Key: HeaderEventID, Value: []byte("e-1")}))
	require.NoError(t, producer.PublishDLQ(context.Background(), []byte("k"), []byte("bad")))

	require.Len(t, writer.messages, 2)
	assert.Equal(t, "events", writer.messages[0].Topic)
	assert.Equal(t, HeaderEventID, writer.messages[0].Headers[0].Key)
	assert.Equal(t, "events.dlq", writer.messages[1].Topic)

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestKafkaProducerRequiresDLQTopic(t *testing.T) {
	producer := NewKafkaProducerWithWriter(&captureWriter{}, "events", "")
	assert.Error(t, producer.PublishDLQ(context.Background(), nil, []byte("x")))
}
