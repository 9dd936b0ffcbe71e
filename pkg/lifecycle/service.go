package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

// ScheduleRequest describes a new action.
type ScheduleRequest struct {
	UserID             *uuid.UUID       `json:"user_id,omitempty"`
	TargetEmail        string           `json:"target_email,omitempty"`
	TargetFirstName    string           `json:"target_first_name,omitempty"`
	TargetLastName     string           `json:"target_last_name,omitempty"`
	ActionType         model.ActionType `json:"action_type" binding:"required"`
	TemplateID         *uuid.UUID       `json:"template_id,omitempty"`
	ActionConfig       model.JSONB      `json:"action_config,omitempty"`
	ConfigOverrides    model.JSONB      `json:"config_overrides,omitempty"`
	ScheduledFor       time.Time        `json:"scheduled_for"`
	IsRecurring        bool             `json:"is_recurring"`
	RecurrenceInterval string           `json:"recurrence_interval,omitempty"`
	RecurrenceUntil    *time.Time       `json:"recurrence_until,omitempty"`
	RequiresApproval   bool             `json:"requires_approval"`
	MaxRetries         *int             `json:"max_retries,omitempty"`
	DependsOnActionID  *uuid.UUID       `json:"depends_on_action_id,omitempty"`
}

type Dependencies struct {
	Actions   store.ActionStore
	Adapter   Adapter
	Sink      LogSink
	Templates TemplateSource
	Notifier  Notifier
	Logger    *zap.Logger
}

type Settings struct {
	Scheduler         SchedulerConfig
	DefaultMaxRetries int
	Backoff           Backoff
}

// Service is the entry point used by the API, CLI and scheduler binaries.
type Service struct {
	actions   store.ActionStore
	templates TemplateSource
	notifier  Notifier
	logger    *zap.Logger
	settings  Settings

	executor  *Executor
	gate      *ApprovalGate
	scheduler *Scheduler
	now       func() time.Time
}

func NewService(deps Dependencies, settings Settings) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if settings.DefaultMaxRetries < 0 {
		settings.DefaultMaxRetries = 0
	}

	executor := NewExecutor(deps.Adapter, deps.Sink, deps.Templates, deps.Logger)
	resolver := NewResolver(settings.Backoff, deps.Logger)
	return &Service{
		actions:   deps.Actions,
		templates: deps.Templates,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		settings:  settings,
		executor:  executor,
		gate:      NewApprovalGate(deps.Actions, deps.Notifier),
		scheduler: NewScheduler(deps.Actions, executor, resolver, deps.Notifier, deps.Logger, settings.Scheduler),
		now:       time.Now,
	}
}

// SetClock replaces the time source of every component.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.executor.now = now
	s.gate.now = now
	s.scheduler.now = now
}

func (s *Service) Scheduler() *Scheduler {
	return s.scheduler
}

func (s *Service) ScheduleAction(ctx context.Context, organizationID uuid.UUID, req ScheduleRequest, createdBy string) (*model.ScheduledAction, error) {
	if organizationID == uuid.Nil {
		return nil, ValidationError("organizationId is required")
	}
	if !req.ActionType.Valid() {
		return nil, ValidationError(fmt.Sprintf("unknown action type %q", req.ActionType))
	}
	catalog, _ := CatalogFor(req.ActionType)

	now := s.now()
	scheduledFor := req.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	maxRetries := s.settings.DefaultMaxRetries
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, ValidationError("maxRetries must not be negative")
		}
		maxRetries = *req.MaxRetries
	}

	action := &model.ScheduledAction{
		ID:                 uuid.New(),
		OrganizationID:     organizationID,
		UserID:             req.UserID,
		TargetEmail:        req.TargetEmail,
		TargetFirstName:    req.TargetFirstName,
		TargetLastName:     req.TargetLastName,
		ActionType:         req.ActionType,
		TemplateID:         req.TemplateID,
		ActionConfig:       req.ActionConfig.Clone(),
		ConfigOverrides:    req.ConfigOverrides.Clone(),
		ScheduledFor:       scheduledFor,
		IsRecurring:        req.IsRecurring,
		RecurrenceInterval: req.RecurrenceInterval,
		RecurrenceUntil:    req.RecurrenceUntil,
		Status:             model.ActionPending,
		TotalSteps:         len(catalog),
		MaxRetries:         maxRetries,
		RequiresApproval:   req.RequiresApproval,
		DependsOnActionID:  req.DependsOnActionID,
		CreatedBy:          optionalActor(createdBy),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.validate(ctx, action); err != nil {
		return nil, err
	}

	if err := s.actions.Create(ctx, action); err != nil {
		return nil, InfrastructureError("create action", err)
	}
	s.logger.Info("Action scheduled",
		zap.String("action_id", action.ID.String()),
		zap.String("organization_id", organizationID.String()),
		zap.String("action_type", string(action.ActionType)),
		zap.Time("scheduled_for", action.ScheduledFor))
	s.notifier.ActionChanged(ctx, action)
	return action, nil
}

// validate checks everything schedule and update accept.
func (s *Service) validate(ctx context.Context, action *model.ScheduledAction) error {
	if err := validateTarget(action); err != nil {
		return err
	}
	if _, err := ResolveConfig(ctx, s.templates, action); err != nil {
		return err
	}
	if action.IsRecurring {
		if err := ValidateRecurrence(action.RecurrenceInterval); err != nil {
			return err
		}
		if action.RecurrenceUntil != nil && !action.RecurrenceUntil.After(action.ScheduledFor) {
			return ValidationError("recurrenceUntil must be after scheduledFor")
		}
	}
	if action.DependsOnActionID != nil {
		return s.validateDependency(ctx, action)
	}
	return nil
}

const maxDependencyDepth = 32

// validateDependency walks the depends_on chain of action. The direct
// prerequisite must exist in the same organization and the chain must not
// lead back to action.
func (s *Service) validateDependency(ctx context.Context, action *model.ScheduledAction) error {
	if *action.DependsOnActionID == action.ID {
		return ValidationError("an action cannot depend on itself")
	}

	seen := map[uuid.UUID]bool{action.ID: true}
	next := action.DependsOnActionID
	for depth := 0; next != nil; depth++ {
		if seen[*next] {
			return ValidationError("dependsOnActionId would create a dependency cycle")
		}
		if depth == maxDependencyDepth {
			return ValidationError("dependency chain is too deep")
		}
		seen[*next] = true

		dep, err := s.actions.GetByID(ctx, *next)
		if errors.Is(err, store.ErrNotFound) && depth > 0 {
			return nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return ValidationError(fmt.Sprintf("dependsOnActionId %s does not exist", *next))
		}
		if err != nil {
			return InfrastructureError("load dependency", err)
		}
		if depth == 0 && dep.OrganizationID != action.OrganizationID {
			return ValidationError("dependsOnActionId belongs to another organization")
		}
		next = dep.DependsOnActionID
	}
	return nil
}

func (s *Service) GetAction(ctx context.Context, id uuid.UUID) (*model.ScheduledAction, error) {
	return loadAction(ctx, s.actions, id)
}

func (s *Service) GetActions(ctx context.Context, filter store.ActionFilter) ([]model.ScheduledAction, int64, error) {
	actions, total, err := s.actions.List(ctx, filter)
	if err != nil {
		return nil, 0, InfrastructureError("list actions", err)
	}
	return actions, total, nil
}

// GetPendingActions lists pending actions, optionally for one organization.
func (s *Service) GetPendingActions(ctx context.Context, organizationID *uuid.UUID) ([]model.ScheduledAction, error) {
	actions, _, err := s.GetActions(ctx, store.ActionFilter{
		OrganizationID: organizationID,
		Statuses:       []model.ActionStatus{model.ActionPending},
	})
	return actions, err
}

func (s *Service) CancelAction(ctx context.Context, id uuid.UUID, by, reason string) (*model.ScheduledAction, error) {
	action, err := loadAction(ctx, s.actions, id)
	if err != nil {
		return nil, err
	}
	if action.Status != model.ActionPending {
		return nil, InvalidStateError(msgCancelNotPending)
	}
	ok, err := s.actions.Cancel(ctx, id, by, reason, s.now())
	if err != nil {
		return nil, InfrastructureError("cancel action", err)
	}
	if !ok {
		return nil, InvalidStateError(msgCancelNotPending)
	}
	updated, err := loadAction(ctx, s.actions, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Action cancelled", zap.String("action_id", id.String()), zap.String("by", by))
	s.notifier.ActionChanged(ctx, updated)
	return updated, nil
}

// UpdateAction edits a pending action. Any edit withdraws a prior approval,
// including one that lands between the read and the write.
func (s *Service) UpdateAction(ctx context.Context, id uuid.UUID, patch store.ActionPatch) (*model.ScheduledAction, error) {
	action, err := loadAction(ctx, s.actions, id)
	if err != nil {
		return nil, err
	}
	if action.Status != model.ActionPending {
		return nil, InvalidStateError(msgUpdateNotPending)
	}

	if patch.RecurrenceUntil != nil && patch.ClearRecurrenceUntil {
		return nil, ValidationError("recurrenceUntil cannot be set and cleared at once")
	}
	if patch.DependsOnActionID != nil && patch.ClearDependsOnActionID {
		return nil, ValidationError("dependsOnActionId cannot be set and cleared at once")
	}

	patch.ResetApproval = true
	candidate := action.Clone()
	patch.Apply(candidate)
	if err := s.validate(ctx, candidate); err != nil {
		return nil, err
	}
	if candidate.MaxRetries < 0 {
		return nil, ValidationError("maxRetries must not be negative")
	}

	ok, err := s.actions.UpdatePending(ctx, id, patch, s.now())
	if err != nil {
		return nil, InfrastructureError("update action", err)
	}
	if !ok {
		return nil, InvalidStateError(msgUpdateNotPending)
	}
	updated, err := loadAction(ctx, s.actions, id)
	if err != nil {
		return nil, err
	}
	s.notifier.ActionChanged(ctx, updated)
	return updated, nil
}

func (s *Service) ApproveAction(ctx context.Context, id uuid.UUID, by, notes string) (*model.ScheduledAction, error) {
	return s.gate.Approve(ctx, id, by, notes)
}

func (s *Service) RejectAction(ctx context.Context, id uuid.UUID, by, reason string) (*model.ScheduledAction, error) {
	return s.gate.Reject(ctx, id, by, reason)
}

func (s *Service) ProcessPendingActions(ctx context.Context) (TickResult, error) {
	return s.scheduler.ProcessPendingActions(ctx)
}

func optionalActor(actor string) *string {
	if actor == "" {
		return nil
	}
	return &actor
}
