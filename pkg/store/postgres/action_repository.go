package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

const (
	approvalSatisfiedSQL = "(requires_approval = FALSE OR (approved_at IS NOT NULL AND rejected_at IS NULL))"
	awaitingApprovalSQL  = "status = ? AND requires_approval = TRUE AND approved_at IS NULL AND rejected_at IS NULL"
	leaseExpiredMessage  = "execution lease expired"

	dependencySatisfiedSQL = "(depends_on_action_id IS NULL OR EXISTS (" +
		"SELECT 1 FROM scheduled_actions dep WHERE dep.id = scheduled_actions.depends_on_action_id AND dep.status = ?))"
)

// ActionRepository is the postgres ActionStore. Claim is one conditional
// UPDATE; every other transition also writes an action_events outbox row in
// the same transaction.
type ActionRepository struct {
	db *gorm.DB
}

func NewActionRepository(db *gorm.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

var _ store.ActionStore = (*ActionRepository)(nil)

func (r *ActionRepository) Create(ctx context.Context, action *model.ScheduledAction) error {
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(action).Error; err != nil {
			return err
		}
		return tx.Create(model.NewActionEvent(model.EventActionScheduled, action, action.CreatedAt)).Error
	})
}

func (r *ActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ScheduledAction, error) {
	var action model.ScheduledAction
	err := r.db.WithContext(ctx).First(&action, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (r *ActionRepository) List(ctx context.Context, filter store.ActionFilter) ([]model.ScheduledAction, int64, error) {
	var actions []model.ScheduledAction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ScheduledAction{})
	if filter.OrganizationID != nil {
		query = query.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("status = ANY(?)", pq.Array(statuses))
	}
	if len(filter.ActionTypes) > 0 {
		types := make([]string, len(filter.ActionTypes))
		for i, t := range filter.ActionTypes {
			types[i] = string(t)
		}
		query = query.Where("action_type = ANY(?)", pq.Array(types))
	}
	if filter.ScheduledFrom != nil {
		query = query.Where("scheduled_for >= ?", *filter.ScheduledFrom)
	}
	if filter.ScheduledTo != nil {
		query = query.Where("scheduled_for <= ?", *filter.ScheduledTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("scheduled_for ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	err := query.Find(&actions).Error
	return actions, total, err
}

func (r *ActionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledAction, error) {
	var actions []model.ScheduledAction
	query := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", model.ActionPending, now).
		Where(approvalSatisfiedSQL).
		Where(dependencySatisfiedSQL, model.ActionCompleted).
		Order("scheduled_for ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&actions).Error
	return actions, err
}

func (r *ActionRepository) Claim(ctx context.Context, id uuid.UUID, owner string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ScheduledAction{}).
		Where("id = ? AND status = ?", id, model.ActionPending).
		Where(approvalSatisfiedSQL).
		Updates(map[string]interface{}{
			"status":     model.ActionInProgress,
			"claimed_by": owner,
			"claimed_at": now,
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ActionRepository) UpdatePending(ctx context.Context, id uuid.UUID, patch store.ActionPatch, now time.Time) (bool, error) {
	updates := patch.Updates()
	updates["updated_at"] = now
	return r.transition(ctx, id, model.EventActionUpdated, now, updates, nil,
		"status = ?", model.ActionPending)
}

func (r *ActionRepository) Cancel(ctx context.Context, id uuid.UUID, by, reason string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.EventActionCancelled, now, map[string]interface{}{
		"status":              model.ActionCancelled,
		"cancelled_by":        nullable(by),
		"cancelled_at":        now,
		"cancellation_reason": reason,
		"finished_at":         now,
		"updated_at":          now,
	}, nil, "status = ?", model.ActionPending)
}

func (r *ActionRepository) Approve(ctx context.Context, id uuid.UUID, by, notes string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.EventActionApproved, now, map[string]interface{}{
		"approved_by":    nullable(by),
		"approved_at":    now,
		"approval_notes": notes,
		"updated_at":     now,
	}, nil, awaitingApprovalSQL, model.ActionPending)
}

func (r *ActionRepository) Reject(ctx context.Context, id uuid.UUID, by, reason string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.EventActionRejected, now, map[string]interface{}{
		"status":           model.ActionCancelled,
		"rejected_by":      nullable(by),
		"rejected_at":      now,
		"rejection_reason": reason,
		"finished_at":      now,
		"updated_at":       now,
	}, nil, awaitingApprovalSQL, model.ActionPending)
}

func (r *ActionRepository) Resolve(ctx context.Context, id uuid.UUID, owner string, res store.Resolution, now time.Time) (bool, error) {
	var insertSuccessor func(tx *gorm.DB) error
	if res.Successor != nil {
		insertSuccessor = func(tx *gorm.DB) error {
			successor := res.Successor
			if successor.ID == uuid.Nil {
				successor.ID = uuid.New()
			}
			successor.CreatedAt = now
			successor.UpdatedAt = now
			if err := tx.Create(successor).Error; err != nil {
				return err
			}
			return tx.Create(model.NewActionEvent(model.EventActionScheduled, successor, now)).Error
		}
	}
	return r.transition(ctx, id, model.EventActionResolved, now, res.Updates(now), insertSuccessor,
		"status = ? AND claimed_by = ?", model.ActionInProgress, owner)
}

// ReclaimStale fails exhausted actions first so a row requeued by the second
// statement cannot be failed in the same call.
func (r *ActionRepository) ReclaimStale(ctx context.Context, claimedBefore, now time.Time) (int64, error) {
	var reclaimed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var failed []model.ScheduledAction
		res := tx.Model(&failed).
			Clauses(clause.Returning{}).
			Where("status = ? AND claimed_at < ? AND retry_count >= max_retries", model.ActionInProgress, claimedBefore).
			Updates(map[string]interface{}{
				"status":      model.ActionFailed,
				"claimed_by":  nil,
				"claimed_at":  nil,
				"finished_at": now,
				"last_error":  leaseExpiredMessage,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}

		var requeued []model.ScheduledAction
		res = tx.Model(&requeued).
			Clauses(clause.Returning{}).
			Where("status = ? AND claimed_at < ? AND retry_count < max_retries", model.ActionInProgress, claimedBefore).
			Updates(map[string]interface{}{
				"status":      model.ActionPending,
				"claimed_by":  nil,
				"claimed_at":  nil,
				"retry_count": gorm.Expr("retry_count + 1"),
				"last_error":  leaseExpiredMessage,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}

		for _, batch := range [][]model.ScheduledAction{failed, requeued} {
			for i := range batch {
				if err := tx.Create(model.NewActionEvent(model.EventActionReclaimed, &batch[i], now)).Error; err != nil {
					return err
				}
				reclaimed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reclaimed, nil
}

// transition applies updates to the row matching id and cond, then writes the
// outbox event and runs after, all in one transaction. It reports false and
// writes nothing when no row matched.
func (r *ActionRepository) transition(
	ctx context.Context,
	id uuid.UUID,
	eventType string,
	now time.Time,
	updates map[string]interface{},
	after func(tx *gorm.DB) error,
	cond string,
	args ...interface{},
) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ScheduledAction{}).
			Where("id = ?", id).
			Where(cond, args...).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		var action model.ScheduledAction
		if err := tx.First(&action, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Create(model.NewActionEvent(eventType, &action, now)).Error; err != nil {
			return err
		}
		if after != nil {
			return after(tx)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func nullable(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
