package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/eventbus"
	"github.com/helios/lifecycle/pkg/metrics"
	"github.com/helios/lifecycle/pkg/model"
)

type Repository interface {
	ListPending(ctx context.Context, limit int) ([]model.ActionEvent, error)
	MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, eventID uuid.UUID, reason string) error
	DeletePublished(ctx context.Context, cutoff time.Time) (int64, error)
}

type Publisher interface {
	PublishEvent(ctx context.Context, key, value []byte, headers ...kafka.Header) error
	PublishDLQ(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

type Options struct {
	PollInterval       time.Duration
	BatchSize          int
	PublishedRetention time.Duration
}

type Relay struct {
	repo      Repository
	publisher Publisher
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
	lastPrune time.Time
}

type Message struct {
	EventID   string      `json:"event_id"`
	ActionID  string      `json:"action_id"`
	EventType string      `json:"event_type"`
	Payload   model.JSONB `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

type DLQMessage struct {
	Event    Message   `json:"event"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func NewRelay(repo Repository, publisher Publisher, logger *zap.Logger, opts Options) *Relay {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Relay{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay starting",
		zap.Duration("poll_interval", r.opts.PollInterval),
		zap.Int("batch_size", r.opts.BatchSize),
	)

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.ProcessPending(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.ProcessPending(ctx)
			r.prune(ctx)
		}
	}
}

// ProcessPending publishes one batch of pending events and returns how many
// reached the event topic.
func (r *Relay) ProcessPending(ctx context.Context) int {
	events, err := r.repo.ListPending(ctx, r.opts.BatchSize)
	if err != nil {
		r.logger.Warn("failed to list pending outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		ok, err := r.publishEvent(ctx, event)
		if err != nil {
			r.logger.Warn("failed to publish outbox event", zap.Error(err), zap.String("event_id", event.EventID.String()))
		}
		if ok {
			published++
		}
	}
	return published
}

func (r *Relay) publishEvent(ctx context.Context, event model.ActionEvent) (bool, error) {
	message := Message{
		EventID:   event.EventID.String(),
		ActionID:  event.ActionID.String(),
		EventType: event.EventType,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return false, err
	}

	headers := []kafka.Header{
		{Key: eventbus.HeaderEventID, Value: []byte(message.EventID)},
		{Key: eventbus.HeaderEventType, Value: []byte(event.EventType)},
	}

	if err := r.publisher.PublishEvent(ctx, []byte(message.ActionID), payload, headers...); err != nil {
		r.logger.Warn("failed to publish to kafka, sending to DLQ", zap.Error(err), zap.String("event_id", message.EventID))
		return false, r.publishDLQ(ctx, message, err, event.EventID)
	}
	metrics.OutboxEvents.WithLabelValues("published").Inc()

	if err := r.repo.MarkPublished(ctx, event.EventID, r.now()); err != nil {
		return true, err
	}

	return true, nil
}

func (r *Relay) publishDLQ(ctx context.Context, message Message, publishErr error, eventID uuid.UUID) error {
	dlq := DLQMessage{
		Event:    message,
		Error:    publishErr.Error(),
		FailedAt: r.now(),
	}

	payload, err := json.Marshal(dlq)
	if err != nil {
		return err
	}

	if err := r.publisher.PublishDLQ(ctx, []byte(message.ActionID), payload,
		kafka.Header{Key: eventbus.HeaderEventID, Value: []byte(message.EventID)},
		kafka.Header{Key: eventbus.HeaderDLQError, Value: []byte(publishErr.Error())},
	); err != nil {
		return err
	}
	metrics.OutboxEvents.WithLabelValues("dead_lettered").Inc()

	return r.repo.MarkFailed(ctx, eventID, dlq.Error)
}

func (r *Relay) prune(ctx context.Context) {
	if r.opts.PublishedRetention <= 0 {
		return
	}
	now := r.now()
	if now.Sub(r.lastPrune) < time.Hour {
		return
	}
	r.lastPrune = now

	deleted, err := r.repo.DeletePublished(ctx, now.Add(-r.opts.PublishedRetention))
	if err != nil {
		r.logger.Warn("failed to prune published outbox events", zap.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("pruned published outbox events", zap.Int64("deleted", deleted))
	}
}
