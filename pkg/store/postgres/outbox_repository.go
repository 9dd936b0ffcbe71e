package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helios/lifecycle/pkg/model"
)

// OutboxRepository reads and settles the action_events rows written by
// ActionRepository transitions.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// ListPending returns unpublished events in commit order. Events of one
// action keep their relative order so consumers see transitions in sequence.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]model.ActionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []model.ActionEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC, event_id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ListEvents returns the transition history of one action, oldest first,
// whatever its publish status.
func (r *OutboxRepository) ListEvents(ctx context.Context, actionID uuid.UUID, limit int) ([]model.ActionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var events []model.ActionEvent
	err := r.db.WithContext(ctx).
		Where("action_id = ?", actionID).
		Order("created_at ASC, event_id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error {
	return r.settle(ctx, eventID, map[string]interface{}{
		"status":       model.OutboxStatusPublished,
		"published_at": publishedAt,
		"last_error":   "",
	})
}

// MarkFailed parks an event that went to the dead letter topic together with
// the publish error.
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID uuid.UUID, reason string) error {
	return r.settle(ctx, eventID, map[string]interface{}{
		"status":     model.OutboxStatusFailed,
		"last_error": reason,
	})
}

// settle only touches events still pending, so a relay that lost a race
// cannot flip a settled event back.
func (r *OutboxRepository) settle(ctx context.Context, eventID uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.ActionEvent{}).
		Where("event_id = ? AND status = ?", eventID, model.OutboxStatusPending).
		Updates(updates).Error
}

// DeletePublished removes published events older than cutoff. Failed events
// are kept for inspection.
func (r *OutboxRepository) DeletePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND published_at < ?", model.OutboxStatusPublished, cutoff).
		Delete(&model.ActionEvent{})
	return res.RowsAffected, res.Error
}
