package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/helios/lifecycle/pkg/metrics"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

const resolveTimeout = 30 * time.Second

type SchedulerConfig struct {
	// InstanceID prefixes the claim token stamped into claimed_by.
	InstanceID  string
	BatchSize   int
	Concurrency int
	// LeaseTTL bounds how long a claim may stay in_progress before another
	// instance reclaims it. Zero disables reclaiming.
	LeaseTTL time.Duration
}

type TickResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type Scheduler struct {
	actions  store.ActionStore
	executor *Executor
	resolver *Resolver
	notifier Notifier
	logger   *zap.Logger
	cfg      SchedulerConfig
	now      func() time.Time
}

func NewScheduler(
	actions store.ActionStore,
	executor *Executor,
	resolver *Resolver,
	notifier Notifier,
	logger *zap.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Scheduler{
		actions:  actions,
		executor: executor,
		resolver: resolver,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
)

// ProcessPendingActions runs one tick: reclaim expired leases, select due
// actions, then claim, execute and resolve each one. A failure of one action
// never stops the others; only a failure to list due actions is returned.
func (s *Scheduler) ProcessPendingActions(ctx context.Context) (TickResult, error) {
	started := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	s.reclaimStale(ctx)

	due, err := s.actions.ListDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return TickResult{}, InfrastructureError("list due actions", err)
	}
	if len(due) == 0 {
		return TickResult{}, nil
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result TickResult
	)
	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))

	for i := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn("Tick interrupted", zap.Error(err))
			break
		}
		wg.Add(1)
		go func(action model.ScheduledAction) {
			defer func() {
				sem.Release(1)
				wg.Done()
			}()
			o := s.processIsolated(ctx, &action)

			mu.Lock()
			defer mu.Unlock()
			switch o {
			case outcomeSucceeded:
				result.Processed++
				result.Succeeded++
			case outcomeFailed:
				result.Processed++
				result.Failed++
			}
		}(due[i])
	}
	wg.Wait()

	s.logger.Info("Scheduler tick finished",
		zap.String("instance", s.cfg.InstanceID),
		zap.Int("due", len(due)),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *Scheduler) processIsolated(ctx context.Context, action *model.ScheduledAction) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Action processing panicked",
				zap.String("action_id", action.ID.String()),
				zap.String("panic", fmt.Sprint(r)))
			o = outcomeFailed
		}
	}()
	return s.process(ctx, action)
}

func (s *Scheduler) process(ctx context.Context, action *model.ScheduledAction) outcome {
	log := s.logger.With(
		zap.String("action_id", action.ID.String()),
		zap.String("organization_id", action.OrganizationID.String()),
		zap.String("action_type", string(action.ActionType)))

	// A fresh token per claim keeps a run that outlived its lease from
	// resolving a later claim made by the same instance.
	owner := s.cfg.InstanceID + "/" + uuid.NewString()
	claimedAt := s.now()
	ok, err := s.actions.Claim(ctx, action.ID, owner, claimedAt)
	if err != nil {
		log.Error("Failed to claim action", zap.Error(err))
		return outcomeSkipped
	}
	if !ok {
		metrics.ClaimConflicts.Inc()
		log.Debug("Action already claimed elsewhere")
		return outcomeSkipped
	}
	claimed := action.Clone()
	claimed.Status = model.ActionInProgress
	claimed.ClaimedBy = &owner
	claimed.ClaimedAt = &claimedAt
	claimed.StartedAt = &claimedAt
	s.notifier.ActionChanged(ctx, claimed)

	result, execErr := s.execute(ctx, claimed)
	now := s.now()
	res := s.resolver.Decide(claimed, result, execErr, now)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
	defer cancel()
	resolved, err := s.actions.Resolve(writeCtx, claimed.ID, owner, res, now)
	switch {
	case err != nil:
		// The lease expires and ReclaimStale retries the action.
		log.Error("Failed to resolve action", zap.Error(err))
		return outcomeFailed
	case !resolved:
		log.Warn("Lease lost before resolution; result discarded", zap.String("status", string(res.Status)))
		return outcomeFailed
	}

	res.Apply(claimed, now)
	s.notifier.ActionChanged(writeCtx, claimed)
	if res.Successor != nil {
		metrics.RecurrencesCreated.WithLabelValues(string(claimed.ActionType)).Inc()
		s.notifier.ActionChanged(writeCtx, res.Successor)
		log.Info("Next occurrence scheduled",
			zap.String("successor_id", res.Successor.ID.String()),
			zap.Time("scheduled_for", res.Successor.ScheduledFor))
	}

	succeeded := execErr == nil && result != nil && result.Success
	metrics.ActionsProcessed.WithLabelValues(string(claimed.ActionType), string(res.Status)).Inc()
	if res.Status == model.ActionPending {
		metrics.RetryCount.WithLabelValues(string(claimed.ActionType)).Inc()
		log.Warn("Action failed; retry scheduled",
			zap.Int("retry_count", res.RetryCount),
			zap.Time("scheduled_for", *res.ScheduledFor),
			zap.String("error", res.LastError))
	} else if !succeeded {
		log.Error("Action failed permanently", zap.String("error", res.LastError))
	}

	if succeeded {
		return outcomeSucceeded
	}
	return outcomeFailed
}

// execute converts a panic in the workflow into an infrastructure failure so
// the claimed action is still resolved.
func (s *Scheduler) execute(ctx context.Context, action *model.ScheduledAction) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = InfrastructureError("execute workflow", fmt.Errorf("panic: %v", r))
		}
	}()
	return s.executor.Execute(ctx, action), nil
}

func (s *Scheduler) reclaimStale(ctx context.Context) {
	if s.cfg.LeaseTTL <= 0 {
		return
	}
	now := s.now()
	count, err := s.actions.ReclaimStale(ctx, now.Add(-s.cfg.LeaseTTL), now)
	if err != nil {
		s.logger.Error("Failed to reclaim stale actions", zap.Error(err))
		return
	}
	if count > 0 {
		metrics.StaleReclaimed.Add(float64(count))
		s.logger.Warn("Reclaimed actions with expired leases", zap.Int64("count", count))
	}
}
