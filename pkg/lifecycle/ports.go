package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/metrics"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

// StepRequest is everything a provider needs to run one named step.
type StepRequest struct {
	ActionID        uuid.UUID        `json:"action_id"`
	OrganizationID  uuid.UUID        `json:"organization_id"`
	UserID          *uuid.UUID       `json:"user_id,omitempty"`
	TargetEmail     string           `json:"target_email,omitempty"`
	TargetFirstName string           `json:"target_first_name,omitempty"`
	TargetLastName  string           `json:"target_last_name,omitempty"`
	ActionType      model.ActionType `json:"action_type"`
	Step            string           `json:"step"`
	Config          model.JSONB      `json:"config"`
	Attempt         int              `json:"attempt"`
}

type StepResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Adapter executes steps against an identity provider. A returned error and a
// result with Success=false are both step failures.
type Adapter interface {
	ExecuteStep(ctx context.Context, req StepRequest) (StepResult, error)
}

// LogSink receives every step outcome. Implementations must not panic into or
// block the workflow for long; failures are theirs to absorb.
type LogSink interface {
	Record(ctx context.Context, entry *model.LifecycleLogEntry)
}

// Notifier is told about every persisted status change.
type Notifier interface {
	ActionChanged(ctx context.Context, action *model.ScheduledAction)
}

type nopSink struct{}

func (nopSink) Record(context.Context, *model.LifecycleLogEntry) {}

type nopNotifier struct{}

func (nopNotifier) ActionChanged(context.Context, *model.ScheduledAction) {}

// StoreSink writes step outcomes to a LogStore. Write errors are logged and
// dropped.
type StoreSink struct {
	store   store.LogStore
	logger  *zap.Logger
	timeout time.Duration
}

func NewStoreSink(logStore store.LogStore, logger *zap.Logger) *StoreSink {
	return &StoreSink{store: logStore, logger: logger, timeout: 5 * time.Second}
}

func (s *StoreSink) Record(ctx context.Context, entry *model.LifecycleLogEntry) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LogSinkFailures.Inc()
			s.logger.Error("Lifecycle log sink panicked",
				zap.String("action_id", entry.ActionID.String()),
				zap.String("step", entry.StepName),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	// Detached from ctx so a cancelled tick still records what already ran.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.store.CreateBatch(writeCtx, []*model.LifecycleLogEntry{entry}); err != nil {
		metrics.LogSinkFailures.Inc()
		s.logger.Warn("Failed to record lifecycle log entry",
			zap.String("action_id", entry.ActionID.String()),
			zap.String("step", entry.StepName),
			zap.Error(err))
	}
}
