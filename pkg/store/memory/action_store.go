package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

// ActionStore is a thread-safe in-process ActionStore. Each conditional
// transition runs under the write lock, which gives it the same
// compare-and-set semantics as the conditional UPDATE in postgres.
type ActionStore struct {
	mu      sync.RWMutex
	actions map[uuid.UUID]*model.ScheduledAction
	events  []*model.ActionEvent
}

func NewActionStore() *ActionStore {
	return &ActionStore{actions: make(map[uuid.UUID]*model.ScheduledAction)}
}

func (s *ActionStore) Create(_ context.Context, action *model.ScheduledAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	now := time.Now()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	action.UpdatedAt = action.CreatedAt
	s.actions[action.ID] = action.Clone()
	s.record(model.EventActionScheduled, action, now)
	return nil
}

func (s *ActionStore) GetByID(_ context.Context, id uuid.UUID) (*model.ScheduledAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	action, ok := s.actions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return action.Clone(), nil
}

func (s *ActionStore) List(_ context.Context, filter store.ActionFilter) ([]model.ScheduledAction, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]model.ScheduledAction, 0)
	for _, action := range s.actions {
		if matchesFilter(action, filter) {
			matched = append(matched, *action.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ScheduledFor.Before(matched[j].ScheduledFor)
	})

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []model.ScheduledAction{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *ActionStore) ListDue(_ context.Context, now time.Time, limit int) ([]model.ScheduledAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]model.ScheduledAction, 0)
	for _, action := range s.actions {
		if action.Status != model.ActionPending || action.ScheduledFor.After(now) {
			continue
		}
		if !action.ApprovalSatisfied() {
			continue
		}
		if action.DependsOnActionID != nil {
			dep, ok := s.actions[*action.DependsOnActionID]
			if !ok || dep.Status != model.ActionCompleted {
				continue
			}
		}
		due = append(due, *action.Clone())
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *ActionStore) Claim(_ context.Context, id uuid.UUID, owner string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[id]
	if !ok || action.Status != model.ActionPending || !action.ApprovalSatisfied() {
		return false, nil
	}
	claimedAt := now
	claimedBy := owner
	action.Status = model.ActionInProgress
	action.ClaimedBy = &claimedBy
	action.ClaimedAt = &claimedAt
	action.StartedAt = &claimedAt
	action.UpdatedAt = now
	return true, nil
}

func (s *ActionStore) UpdatePending(_ context.Context, id uuid.UUID, patch store.ActionPatch, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[id]
	if !ok || action.Status != model.ActionPending {
		return false, nil
	}
	patch.Apply(action)
	action.UpdatedAt = now
	s.record(model.EventActionUpdated, action, now)
	return true, nil
}

func (s *ActionStore) Cancel(_ context.Context, id uuid.UUID, by, reason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[id]
	if !ok || action.Status != model.ActionPending {
		return false, nil
	}
	cancelledAt := now
	action.Status = model.ActionCancelled
	action.CancelledBy = optional(by)
	action.CancelledAt = &cancelledAt
	action.CancellationReason = reason
	action.FinishedAt = &cancelledAt
	action.UpdatedAt = now
	s.record(model.EventActionCancelled, action, now)
	return true, nil
}

func (s *ActionStore) Approve(_ context.Context, id uuid.UUID, by, notes string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[id]
	if !ok || !awaitingApproval(action) {
		return false, nil
	}
	approvedAt := now
	action.ApprovedBy = optional(by)
	action.ApprovedAt = &approvedAt
	action.ApprovalNotes = notes
	action.UpdatedAt = now
	s.record(model.EventActionApproved, action, now)
	return true, nil
}

func (s *ActionStore) Reject(_ context.Context, id uuid.UUID, by, reason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[id]
	if !ok || !awaitingApproval(action) {
		return false, nil
	}
	rejectedAt := now
	action.Status = model.ActionCancelled
	action.RejectedBy = optional(by)
	action.RejectedAt = &rejectedAt
	action.RejectionReason = reason
	action.FinishedAt = &rejectedAt
	action.UpdatedAt = now
	s.record(model.EventActionRejected, action, now)
	return true, nil
}

func (s *ActionStore) Resolve(_ context.Context, id uuid.UUID, owner string, res store.Resolution, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[id]
	if !ok || action.Status != model.ActionInProgress {
		return false, nil
	}
	if action.ClaimedBy == nil || *action.ClaimedBy != owner {
		return false, nil
	}
	res.Apply(action, now)
	s.record(model.EventActionResolved, action, now)

	if res.Successor != nil {
		successor := res.Successor.Clone()
		if successor.ID == uuid.Nil {
			successor.ID = uuid.New()
		}
		successor.CreatedAt = now
		successor.UpdatedAt = now
		s.actions[successor.ID] = successor
		s.record(model.EventActionScheduled, successor, now)
	}
	return true, nil
}

func (s *ActionStore) ReclaimStale(_ context.Context, claimedBefore, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reclaimed int64
	for _, action := range s.actions {
		if action.Status != model.ActionInProgress || action.ClaimedAt == nil || !action.ClaimedAt.Before(claimedBefore) {
			continue
		}
		action.ClaimedBy = nil
		action.ClaimedAt = nil
		action.LastError = "execution lease expired"
		action.UpdatedAt = now
		if action.RetryCount >= action.MaxRetries {
			finished := now
			action.Status = model.ActionFailed
			action.FinishedAt = &finished
		} else {
			action.Status = model.ActionPending
			action.RetryCount++
		}
		s.record(model.EventActionReclaimed, action, now)
		reclaimed++
	}
	return reclaimed, nil
}

func (s *ActionStore) ListEvents(_ context.Context, actionID uuid.UUID, limit int) ([]model.ActionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ActionEvent
	for _, event := range s.events {
		if event.ActionID != actionID {
			continue
		}
		out = append(out, *event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Events returns a copy of the recorded outbox events, oldest first.
func (s *ActionStore) Events() []model.ActionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ActionEvent, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, *event)
	}
	return out
}

func (s *ActionStore) record(eventType string, action *model.ScheduledAction, now time.Time) {
	s.events = append(s.events, model.NewActionEvent(eventType, action, now))
}

func awaitingApproval(action *model.ScheduledAction) bool {
	return action.Status == model.ActionPending &&
		action.RequiresApproval &&
		action.ApprovedAt == nil &&
		action.RejectedAt == nil
}

func matchesFilter(action *model.ScheduledAction, filter store.ActionFilter) bool {
	if filter.OrganizationID != nil && action.OrganizationID != *filter.OrganizationID {
		return false
	}
	if filter.UserID != nil && (action.UserID == nil || *action.UserID != *filter.UserID) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, action.Status) {
		return false
	}
	if len(filter.ActionTypes) > 0 && !containsType(filter.ActionTypes, action.ActionType) {
		return false
	}
	if filter.ScheduledFrom != nil && action.ScheduledFor.Before(*filter.ScheduledFrom) {
		return false
	}
	if filter.ScheduledTo != nil && action.ScheduledFor.After(*filter.ScheduledTo) {
		return false
	}
	return true
}

func containsStatus(values []model.ActionStatus, want model.ActionStatus) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func containsType(values []model.ActionType, want model.ActionType) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
