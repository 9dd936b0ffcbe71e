package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/helios/lifecycle/pkg/config"
)

const (
	HeaderEventID     = "helios-event-id"
	HeaderEventType   = "helios-event-type"
	HeaderOriginTopic = "helios-origin-topic"
	HeaderDLQError    = "helios-dlq-error"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer     MessageWriter
	eventTopic string
	dlqTopic   string
	now        func() time.Time
}

func NewKafkaProducer(cfg config.KafkaConfig) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
	}
	return NewKafkaProducerWithWriter(writer, cfg.EventTopic, cfg.DLQTopic)
}

func NewKafkaProducerWithWriter(writer MessageWriter, eventTopic, dlqTopic string) *KafkaProducer {
	return &KafkaProducer{
		writer:     writer,
		eventTopic: eventTopic,
		dlqTopic:   dlqTopic,
		now:        time.Now,
	}
}

// PublishEvent writes to the event topic. Keys are action ids so every event
// of one action lands on the same partition.
func (p *KafkaProducer) PublishEvent(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	return p.publish(ctx, p.eventTopic, key, value, headers)
}

func (p *KafkaProducer) PublishDLQ(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	if p.dlqTopic == "" {
		return errors.New("dlq topic is not configured")
	}
	return p.publish(ctx, p.dlqTopic, key, value, headers)
}

func (p *KafkaProducer) publish(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	if topic == "" {
		return errors.New("topic is not configured")
	}

	message := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    p.now(),
	}

	return p.writer.WriteMessages(ctx, message)
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
