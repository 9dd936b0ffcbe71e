package lifecycle

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

// Resolver decides what follows an execution attempt: completion (plus the
// next recurrence), a delayed retry, or terminal failure.
type Resolver struct {
	backoff Backoff
	logger  *zap.Logger
}

func NewResolver(backoff Backoff, logger *zap.Logger) *Resolver {
	return &Resolver{backoff: backoff, logger: logger}
}

// Decide treats execErr exactly like a failed workflow.
func (r *Resolver) Decide(action *model.ScheduledAction, result *Result, execErr error, now time.Time) store.Resolution {
	completed := 0
	if result != nil {
		completed = len(result.StepsCompleted)
	}

	if execErr == nil && result != nil && result.Success {
		return store.Resolution{
			Status:         model.ActionCompleted,
			CompletedSteps: action.TotalSteps,
			RetryCount:     action.RetryCount,
			Successor:      r.successor(action, now),
		}
	}

	lastError := failureReason(result, execErr)
	if action.RetryCount < action.MaxRetries {
		attempt := action.RetryCount + 1
		next := now.Add(r.backoff.Delay(attempt))
		return store.Resolution{
			Status:         model.ActionPending,
			CompletedSteps: completed,
			RetryCount:     attempt,
			ScheduledFor:   &next,
			LastError:      lastError,
		}
	}
	return store.Resolution{
		Status:         model.ActionFailed,
		CompletedSteps: completed,
		RetryCount:     action.RetryCount,
		LastError:      lastError,
	}
}

func (r *Resolver) successor(action *model.ScheduledAction, now time.Time) *model.ScheduledAction {
	if !action.IsRecurring {
		return nil
	}
	if action.RecurrenceUntil != nil && !now.Before(*action.RecurrenceUntil) {
		return nil
	}
	next, err := NextOccurrence(action.RecurrenceInterval, action.ScheduledFor, now)
	if err != nil {
		r.logger.Error("Cannot compute next occurrence",
			zap.String("action_id", action.ID.String()),
			zap.String("interval", action.RecurrenceInterval),
			zap.Error(err))
		return nil
	}
	if action.RecurrenceUntil != nil && next.After(*action.RecurrenceUntil) {
		return nil
	}
	return NewSuccessor(action, next)
}

// NewSuccessor copies action into a fresh pending occurrence at next.
func NewSuccessor(action *model.ScheduledAction, next time.Time) *model.ScheduledAction {
	s := action.Clone()
	parent := action.ID
	s.ID = uuid.New()
	s.ParentActionID = &parent
	s.ScheduledFor = next
	s.Status = model.ActionPending
	s.CompletedSteps = 0
	s.RetryCount = 0
	s.LastError = ""
	s.ClaimedBy, s.ClaimedAt = nil, nil
	s.StartedAt, s.FinishedAt = nil, nil
	s.ApprovedBy, s.ApprovedAt, s.ApprovalNotes = nil, nil, ""
	s.RejectedBy, s.RejectedAt, s.RejectionReason = nil, nil, ""
	s.CancelledBy, s.CancelledAt, s.CancellationReason = nil, nil, ""
	s.DependsOnActionID = nil
	s.CreatedAt, s.UpdatedAt = time.Time{}, time.Time{}
	return s
}

func failureReason(result *Result, execErr error) string {
	if execErr != nil {
		return Message(execErr)
	}
	if result == nil || len(result.Errors) == 0 {
		return "workflow failed"
	}
	return strings.Join(result.Errors, "; ")
}
