package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/metrics"
	"github.com/helios/lifecycle/pkg/store"
)

// Ticker processes one batch of due actions.
type Ticker interface {
	ProcessPendingActions(ctx context.Context) (lifecycle.TickResult, error)
}

type Options struct {
	TickSchedule      string
	RetentionSchedule string
	RetentionDays     int
	// Logs is pruned on RetentionSchedule; nil disables retention.
	Logs store.LogStore
}

// Runner drives scheduler ticks from a cron schedule. A tick that overruns
// its slot makes the next one skip rather than overlap.
type Runner struct {
	ticker Ticker
	opts   Options
	logger *zap.Logger
	cron   *cron.Cron

	mu       sync.Mutex
	ctx      context.Context
	lastTick lifecycle.TickResult
}

func NewRunner(ticker Ticker, logger *zap.Logger, opts Options) (*Runner, error) {
	if opts.TickSchedule == "" {
		opts.TickSchedule = "@every 30s"
	}
	if opts.RetentionSchedule == "" {
		opts.RetentionSchedule = "@hourly"
	}

	cronLogger := zapCronLogger{logger: logger}
	r := &Runner{
		ticker: ticker,
		opts:   opts,
		logger: logger,
		ctx:    context.Background(),
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
			cron.WithLogger(cronLogger),
		),
	}

	if _, err := r.cron.AddFunc(opts.TickSchedule, r.Tick); err != nil {
		return nil, fmt.Errorf("invalid tick schedule %q: %w", opts.TickSchedule, err)
	}
	if opts.Logs != nil && opts.RetentionDays > 0 {
		if _, err := r.cron.AddFunc(opts.RetentionSchedule, r.PruneLogs); err != nil {
			return nil, fmt.Errorf("invalid retention schedule %q: %w", opts.RetentionSchedule, err)
		}
	}
	return r, nil
}

// Run blocks until ctx is done, then waits for a running tick to finish.
func (r *Runner) Run(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.logger.Info("scheduler starting", zap.String("tick_schedule", r.opts.TickSchedule))
	r.cron.Start()
	<-ctx.Done()

	r.logger.Info("scheduler stopping, waiting for running tick")
	<-r.cron.Stop().Done()
}

func (r *Runner) Tick() {
	ctx := r.context()
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	result, err := r.ticker.ProcessPendingActions(ctx)
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.logger.Error("scheduler tick failed", zap.Error(err))
		return
	}

	r.mu.Lock()
	r.lastTick = result
	r.mu.Unlock()

	if result.Processed > 0 {
		r.logger.Info("scheduler tick",
			zap.Int("processed", result.Processed),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Duration("duration", time.Since(start)))
	}
}

func (r *Runner) PruneLogs() {
	ctx := r.context()
	r.logger.Info("starting log retention cleanup", zap.Int("retention_days", r.opts.RetentionDays))
	if err := r.opts.Logs.DeleteOldLogs(ctx, r.opts.RetentionDays); err != nil {
		r.logger.Error("failed to cleanup old logs", zap.Error(err))
	}
}

func (r *Runner) LastTick() lifecycle.TickResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTick
}

func (r *Runner) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
