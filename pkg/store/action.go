package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/helios/lifecycle/pkg/model"
)

var ErrNotFound = errors.New("record not found")

// ActionStore persists scheduled actions. Every method that changes status is a
// single conditional write: it reports false, and changes nothing, when the
// record is not in the state the method requires.
type ActionStore interface {
	Create(ctx context.Context, action *model.ScheduledAction) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ScheduledAction, error)
	List(ctx context.Context, filter ActionFilter) ([]model.ScheduledAction, int64, error)

	// ListDue returns pending actions with scheduled_for <= now whose approval
	// and dependency are satisfied, earliest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledAction, error)

	// Claim moves a pending action to in_progress and stamps the lease owner.
	Claim(ctx context.Context, id uuid.UUID, owner string, now time.Time) (bool, error)

	UpdatePending(ctx context.Context, id uuid.UUID, patch ActionPatch, now time.Time) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, by, reason string, now time.Time) (bool, error)
	Approve(ctx context.Context, id uuid.UUID, by, notes string, now time.Time) (bool, error)
	Reject(ctx context.Context, id uuid.UUID, by, reason string, now time.Time) (bool, error)

	// Resolve finishes an execution attempt held by owner and, when res carries
	// a successor, inserts it atomically with the resolution.
	Resolve(ctx context.Context, id uuid.UUID, owner string, res Resolution, now time.Time) (bool, error)

	// ReclaimStale requeues (or fails, once retries are exhausted) in_progress
	// actions claimed before claimedBefore.
	ReclaimStale(ctx context.Context, claimedBefore, now time.Time) (int64, error)
}

// EventStore exposes the transition history recorded with each action change.
type EventStore interface {
	ListEvents(ctx context.Context, actionID uuid.UUID, limit int) ([]model.ActionEvent, error)
}

type ActionFilter struct {
	OrganizationID *uuid.UUID
	UserID         *uuid.UUID
	Statuses       []model.ActionStatus
	ActionTypes    []model.ActionType
	ScheduledFrom  *time.Time
	ScheduledTo    *time.Time
	Limit          int
	Offset         int
}

// ActionPatch lists the fields of a pending action that may change. Nil means
// unchanged; the Clear flags reset optional fields to null.
type ActionPatch struct {
	ScheduledFor       *time.Time
	ActionConfig       model.JSONB
	ConfigOverrides    model.JSONB
	TargetEmail        *string
	TargetFirstName    *string
	TargetLastName     *string
	IsRecurring        *bool
	RecurrenceInterval *string
	RecurrenceUntil    *time.Time
	RequiresApproval   *bool
	MaxRetries         *int
	DependsOnActionID  *uuid.UUID

	ClearRecurrenceUntil   bool
	ClearDependsOnActionID bool
	// ResetApproval clears a prior approval so the edited action needs a new one.
	ResetApproval bool
}

// Apply writes the patch onto action in memory.
func (p ActionPatch) Apply(action *model.ScheduledAction) {
	if p.ScheduledFor != nil {
		action.ScheduledFor = *p.ScheduledFor
	}
	if p.ActionConfig != nil {
		action.ActionConfig = p.ActionConfig.Clone()
	}
	if p.ConfigOverrides != nil {
		action.ConfigOverrides = p.ConfigOverrides.Clone()
	}
	if p.TargetEmail != nil {
		action.TargetEmail = *p.TargetEmail
	}
	if p.TargetFirstName != nil {
		action.TargetFirstName = *p.TargetFirstName
	}
	if p.TargetLastName != nil {
		action.TargetLastName = *p.TargetLastName
	}
	if p.IsRecurring != nil {
		action.IsRecurring = *p.IsRecurring
	}
	if p.RecurrenceInterval != nil {
		action.RecurrenceInterval = *p.RecurrenceInterval
	}
	if p.RecurrenceUntil != nil {
		until := *p.RecurrenceUntil
		action.RecurrenceUntil = &until
	}
	if p.RequiresApproval != nil {
		action.RequiresApproval = *p.RequiresApproval
	}
	if p.MaxRetries != nil {
		action.MaxRetries = *p.MaxRetries
	}
	if p.DependsOnActionID != nil {
		dep := *p.DependsOnActionID
		action.DependsOnActionID = &dep
	}
	if p.ClearRecurrenceUntil {
		action.RecurrenceUntil = nil
	}
	if p.ClearDependsOnActionID {
		action.DependsOnActionID = nil
	}
	if p.ResetApproval {
		action.ApprovedBy = nil
		action.ApprovedAt = nil
		action.ApprovalNotes = ""
	}
}

// Updates renders the patch as column updates.
func (p ActionPatch) Updates() map[string]interface{} {
	updates := map[string]interface{}{}
	if p.ScheduledFor != nil {
		updates["scheduled_for"] = *p.ScheduledFor
	}
	if p.ActionConfig != nil {
		updates["action_config"] = p.ActionConfig
	}
	if p.ConfigOverrides != nil {
		updates["config_overrides"] = p.ConfigOverrides
	}
	if p.TargetEmail != nil {
		updates["target_email"] = *p.TargetEmail
	}
	if p.TargetFirstName != nil {
		updates["target_first_name"] = *p.TargetFirstName
	}
	if p.TargetLastName != nil {
		updates["target_last_name"] = *p.TargetLastName
	}
	if p.IsRecurring != nil {
		updates["is_recurring"] = *p.IsRecurring
	}
	if p.RecurrenceInterval != nil {
		updates["recurrence_interval"] = *p.RecurrenceInterval
	}
	if p.RecurrenceUntil != nil {
		updates["recurrence_until"] = *p.RecurrenceUntil
	}
	if p.RequiresApproval != nil {
		updates["requires_approval"] = *p.RequiresApproval
	}
	if p.MaxRetries != nil {
		updates["max_retries"] = *p.MaxRetries
	}
	if p.DependsOnActionID != nil {
		updates["depends_on_action_id"] = *p.DependsOnActionID
	}
	if p.ClearRecurrenceUntil {
		updates["recurrence_until"] = nil
	}
	if p.ClearDependsOnActionID {
		updates["depends_on_action_id"] = nil
	}
	if p.ResetApproval {
		updates["approved_by"] = nil
		updates["approved_at"] = nil
		updates["approval_notes"] = ""
	}
	return updates
}

// Resolution is the outcome of one execution attempt.
type Resolution struct {
	Status         model.ActionStatus
	CompletedSteps int
	RetryCount     int
	// ScheduledFor is set when a retry moves the action back to pending.
	ScheduledFor *time.Time
	LastError    string
	Successor    *model.ScheduledAction
}

// Apply writes the resolution onto action in memory.
func (r Resolution) Apply(action *model.ScheduledAction, now time.Time) {
	action.Status = r.Status
	action.CompletedSteps = r.CompletedSteps
	action.RetryCount = r.RetryCount
	action.LastError = r.LastError
	action.ClaimedBy = nil
	action.ClaimedAt = nil
	if r.ScheduledFor != nil {
		action.ScheduledFor = *r.ScheduledFor
	}
	if r.Status.Terminal() {
		finished := now
		action.FinishedAt = &finished
	}
	action.UpdatedAt = now
}

// Updates renders the resolution as column updates.
func (r Resolution) Updates(now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"status":          r.Status,
		"completed_steps": r.CompletedSteps,
		"retry_count":     r.RetryCount,
		"last_error":      r.LastError,
		"claimed_by":      nil,
		"claimed_at":      nil,
		"updated_at":      now,
	}
	if r.ScheduledFor != nil {
		updates["scheduled_for"] = *r.ScheduledFor
	}
	if r.Status.Terminal() {
		updates["finished_at"] = now
	}
	return updates
}
