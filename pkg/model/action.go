package model

import (
	"time"

	"github.com/google/uuid"
)

type ActionType string

const (
	ActionOnboard   ActionType = "onboard"
	ActionOffboard  ActionType = "offboard"
	ActionSuspend   ActionType = "suspend"
	ActionUnsuspend ActionType = "unsuspend"
	ActionDelete    ActionType = "delete"
	ActionRestore   ActionType = "restore"
)

var ActionTypes = []ActionType{
	ActionOnboard,
	ActionOffboard,
	ActionSuspend,
	ActionUnsuspend,
	ActionDelete,
	ActionRestore,
}

func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionFailed     ActionStatus = "failed"
	ActionCancelled  ActionStatus = "cancelled"
)

var ActionStatuses = []ActionStatus{
	ActionPending,
	ActionInProgress,
	ActionCompleted,
	ActionFailed,
	ActionCancelled,
}

func (s ActionStatus) Valid() bool {
	for _, known := range ActionStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s ActionStatus) Terminal() bool {
	return s == ActionCompleted || s == ActionFailed || s == ActionCancelled
}

type Transition struct {
	From ActionStatus
	To   ActionStatus
}

// in_progress -> pending is the retry requeue and the stale lease reclaim.
var ValidTransitions = []Transition{
	{From: ActionPending, To: ActionInProgress},
	{From: ActionPending, To: ActionCancelled},
	{From: ActionInProgress, To: ActionCompleted},
	{From: ActionInProgress, To: ActionFailed},
	{From: ActionInProgress, To: ActionPending},
}

func IsValidTransition(from, to ActionStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// ScheduledAction is a persisted request to run a lifecycle operation at or
// after ScheduledFor.
type ScheduledAction struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"organization_id"`
	UserID         *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`

	TargetEmail     string `gorm:"type:varchar(320)" json:"target_email,omitempty"`
	TargetFirstName string `json:"target_first_name,omitempty"`
	TargetLastName  string `json:"target_last_name,omitempty"`

	ActionType      ActionType `gorm:"type:varchar(32);not null;index" json:"action_type"`
	TemplateID      *uuid.UUID `gorm:"type:uuid" json:"template_id,omitempty"`
	ActionConfig    JSONB      `gorm:"type:jsonb" json:"action_config"`
	ConfigOverrides JSONB      `gorm:"type:jsonb" json:"config_overrides,omitempty"`

	ScheduledFor       time.Time  `gorm:"not null;index:idx_actions_due,priority:2" json:"scheduled_for"`
	IsRecurring        bool       `json:"is_recurring"`
	RecurrenceInterval string     `gorm:"type:varchar(64)" json:"recurrence_interval,omitempty"`
	RecurrenceUntil    *time.Time `json:"recurrence_until,omitempty"`
	ParentActionID     *uuid.UUID `gorm:"type:uuid;index" json:"parent_action_id,omitempty"`

	Status         ActionStatus `gorm:"type:varchar(32);not null;index:idx_actions_due,priority:1" json:"status"`
	TotalSteps     int          `json:"total_steps"`
	CompletedSteps int          `json:"completed_steps"`
	RetryCount     int          `json:"retry_count"`
	MaxRetries     int          `json:"max_retries"`
	LastError      string       `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedBy      *string      `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time   `gorm:"index" json:"claimed_at,omitempty"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`

	RequiresApproval bool       `json:"requires_approval"`
	ApprovedBy       *string    `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	ApprovalNotes    string     `gorm:"type:text" json:"approval_notes,omitempty"`
	RejectedBy       *string    `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	RejectionReason  string     `gorm:"type:text" json:"rejection_reason,omitempty"`

	DependsOnActionID *uuid.UUID `gorm:"type:uuid;index" json:"depends_on_action_id,omitempty"`

	CreatedBy          *string    `json:"created_by,omitempty"`
	CancelledBy        *string    `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (ScheduledAction) TableName() string {
	return "scheduled_actions"
}

// ApprovalSatisfied reports whether the approval gate lets the action run.
func (a *ScheduledAction) ApprovalSatisfied() bool {
	return !a.RequiresApproval || (a.ApprovedAt != nil && a.RejectedAt == nil)
}

// ApprovalResolved reports whether approve or reject already happened.
func (a *ScheduledAction) ApprovalResolved() bool {
	return a.ApprovedAt != nil || a.RejectedAt != nil
}

// Clone returns a copy that shares no mutable state with a.
func (a *ScheduledAction) Clone() *ScheduledAction {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ActionConfig = a.ActionConfig.Clone()
	cp.ConfigOverrides = a.ConfigOverrides.Clone()
	return &cp
}
