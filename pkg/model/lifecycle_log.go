package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type StepOutcome string

const (
	StepSuccess StepOutcome = "success"
	StepFailed  StepOutcome = "failed"
	StepSkipped StepOutcome = "skipped"
)

// LifecycleLogEntry is one append-only audit record of a workflow step outcome.
type LifecycleLogEntry struct {
	ID             uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ActionID       uuid.UUID         `gorm:"type:uuid;not null;index:idx_lifecycle_logs_action_time" json:"action_id"`
	OrganizationID uuid.UUID         `gorm:"type:uuid;not null;index" json:"organization_id"`
	ActionType     ActionType        `gorm:"type:varchar(32)" json:"action_type"`
	StepName       string            `gorm:"type:varchar(64);not null" json:"step_name"`
	Outcome        StepOutcome       `gorm:"type:varchar(16);not null" json:"outcome"`
	Detail         string            `gorm:"type:text" json:"detail,omitempty"`
	Error          string            `gorm:"type:text" json:"error,omitempty"`
	Attempt        int               `json:"attempt"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	Timestamp      time.Time         `gorm:"not null;index:idx_lifecycle_logs_action_time" json:"timestamp"`
}

func (LifecycleLogEntry) TableName() string {
	return "lifecycle_logs"
}
