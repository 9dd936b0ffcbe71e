package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

// ApprovalGate records human sign-off. Approve and reject are each allowed
// once, only on pending actions that require approval.
type ApprovalGate struct {
	actions  store.ActionStore
	notifier Notifier
	now      func() time.Time
}

func NewApprovalGate(actions store.ActionStore, notifier Notifier) *ApprovalGate {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ApprovalGate{actions: actions, notifier: notifier, now: time.Now}
}

func (g *ApprovalGate) Approve(ctx context.Context, id uuid.UUID, by, notes string) (*model.ScheduledAction, error) {
	return g.resolve(ctx, id, msgApproveNotPending, func(now time.Time) (bool, error) {
		return g.actions.Approve(ctx, id, by, notes, now)
	})
}

// Reject cancels the action and records why.
func (g *ApprovalGate) Reject(ctx context.Context, id uuid.UUID, by, reason string) (*model.ScheduledAction, error) {
	return g.resolve(ctx, id, msgRejectNotPending, func(now time.Time) (bool, error) {
		return g.actions.Reject(ctx, id, by, reason, now)
	})
}

func (g *ApprovalGate) resolve(ctx context.Context, id uuid.UUID, notPending string, write func(time.Time) (bool, error)) (*model.ScheduledAction, error) {
	action, err := loadAction(ctx, g.actions, id)
	if err != nil {
		return nil, err
	}
	if err := approvalPrecondition(action, notPending); err != nil {
		return nil, err
	}

	ok, err := write(g.now())
	if err != nil {
		return nil, InfrastructureError("record approval decision", err)
	}
	current, err := loadAction(ctx, g.actions, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race; explain using the state that won.
		if err := approvalPrecondition(current, notPending); err != nil {
			return nil, err
		}
		return nil, InvalidStateError(notPending)
	}
	g.notifier.ActionChanged(ctx, current)
	return current, nil
}

func approvalPrecondition(action *model.ScheduledAction, notPending string) error {
	switch {
	case !action.RequiresApproval:
		return InvalidStateError(msgApprovalNotNeeded)
	case action.ApprovedAt != nil:
		return InvalidStateError(msgAlreadyApproved)
	case action.RejectedAt != nil:
		return InvalidStateError(msgAlreadyRejected)
	case action.Status != model.ActionPending:
		return InvalidStateError(notPending)
	}
	return nil
}

func loadAction(ctx context.Context, actions store.ActionStore, id uuid.UUID) (*model.ScheduledAction, error) {
	action, err := actions.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError(id)
	}
	if err != nil {
		return nil, InfrastructureError("load action", err)
	}
	return action, nil
}
