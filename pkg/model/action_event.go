package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

const (
	EventActionScheduled = "action_scheduled"
	EventActionUpdated   = "action_updated"
	EventActionCancelled = "action_cancelled"
	EventActionApproved  = "action_approved"
	EventActionRejected  = "action_rejected"
	EventActionResolved  = "action_resolved"
	EventActionReclaimed = "action_reclaimed"
)

// ActionEvent is an outbox row written in the same transaction as the state
// change it describes.
type ActionEvent struct {
	EventID     uuid.UUID  `gorm:"type:uuid;primary_key" json:"event_id"`
	ActionID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_action_events_action,priority:1" json:"action_id"`
	EventType   string     `gorm:"not null" json:"event_type"`
	Payload     JSONB      `gorm:"type:jsonb;not null" json:"payload"`
	Status      string     `gorm:"not null;index" json:"status"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index:idx_action_events_action,priority:2" json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func (ActionEvent) TableName() string {
	return "action_events"
}

func NewActionEvent(eventType string, action *ScheduledAction, now time.Time) *ActionEvent {
	payload := JSONB{
		"action_id":       action.ID.String(),
		"organization_id": action.OrganizationID.String(),
		"action_type":     string(action.ActionType),
		"status":          string(action.Status),
		"retry_count":     action.RetryCount,
		"scheduled_for":   action.ScheduledFor.UTC().Format(time.RFC3339Nano),
	}
	if action.LastError != "" {
		payload["error_message"] = action.LastError
	}
	return &ActionEvent{
		EventID:   uuid.New(),
		ActionID:  action.ID,
		EventType: eventType,
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: now,
	}
}
