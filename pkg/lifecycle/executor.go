package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/helios/lifecycle/pkg/metrics"
	"github.com/helios/lifecycle/pkg/model"
)

// Result aggregates the step outcomes of one execution attempt.
type Result struct {
	Success        bool     `json:"success"`
	Errors         []string `json:"errors"`
	StepsCompleted []string `json:"steps_completed"`
	StepsFailed    []string `json:"steps_failed"`
	StepsSkipped   []string `json:"steps_skipped"`
}

// Aborted reports whether the run stopped before reaching finalize.
func (r *Result) Aborted() bool {
	n := len(r.StepsCompleted)
	return n == 0 || r.StepsCompleted[n-1] != StepFinalize
}

// Executor runs the step catalog of an action against the Adapter.
type Executor struct {
	adapter   Adapter
	sink      LogSink
	templates TemplateSource
	logger    *zap.Logger
	now       func() time.Time
}

func NewExecutor(adapter Adapter, sink LogSink, templates TemplateSource, logger *zap.Logger) *Executor {
	if sink == nil {
		sink = nopSink{}
	}
	return &Executor{
		adapter:   adapter,
		sink:      sink,
		templates: templates,
		logger:    logger,
		now:       time.Now,
	}
}

type stepRun struct {
	action  *model.ScheduledAction
	config  model.JSONB
	attempt int
	result  *Result
}

// Execute runs validate_config first and aborts if it fails. Every later step
// runs regardless of earlier failures, and finalize closes a run that reached
// the end of the catalog.
func (e *Executor) Execute(ctx context.Context, action *model.ScheduledAction) *Result {
	run := &stepRun{
		action:  action,
		attempt: action.RetryCount + 1,
		result:  &Result{Errors: []string{}, StepsCompleted: []string{}, StepsFailed: []string{}, StepsSkipped: []string{}},
	}
	started := e.now()

	catalog, cfg, err := e.validate(ctx, run)
	if err != nil {
		e.fail(ctx, run, StepValidateConfig, Message(err))
		e.logger.Warn("Action configuration rejected",
			zap.String("action_id", action.ID.String()),
			zap.String("action_type", string(action.ActionType)),
			zap.Error(err))
		return run.result
	}
	e.succeed(ctx, run, StepValidateConfig, "configuration valid")

	for _, step := range catalog[1 : len(catalog)-1] {
		if !step.enabledFor(cfg) {
			run.result.StepsSkipped = append(run.result.StepsSkipped, step.Name)
			e.record(ctx, run, step.Name, model.StepSkipped, "disabled by configuration", "")
			continue
		}
		res, err := e.call(ctx, run, step.Name)
		if err != nil {
			e.fail(ctx, run, step.Name, Message(err))
			continue
		}
		e.succeed(ctx, run, step.Name, res.Detail)
	}

	summary := fmt.Sprintf("%d completed, %d failed, %d skipped",
		len(run.result.StepsCompleted), len(run.result.StepsFailed), len(run.result.StepsSkipped))
	e.succeed(ctx, run, StepFinalize, summary)

	run.result.Success = len(run.result.StepsFailed) == 0
	metrics.ActionDuration.WithLabelValues(string(action.ActionType)).Observe(e.now().Sub(started).Seconds())
	return run.result
}

func (e *Executor) validate(ctx context.Context, run *stepRun) (Catalog, ActionConfig, error) {
	catalog, ok := CatalogFor(run.action.ActionType)
	if !ok {
		return nil, nil, ValidationError(fmt.Sprintf("unknown action type %q", run.action.ActionType))
	}
	if err := validateTarget(run.action); err != nil {
		return nil, nil, err
	}
	cfg, err := ResolveConfig(ctx, e.templates, run.action)
	if err != nil {
		return nil, nil, err
	}
	run.config = ConfigMap(cfg)
	if _, err := e.call(ctx, run, StepValidateConfig); err != nil {
		return nil, nil, err
	}
	return catalog, cfg, nil
}

func (e *Executor) call(ctx context.Context, run *stepRun, step string) (StepResult, error) {
	req := StepRequest{
		ActionID:        run.action.ID,
		OrganizationID:  run.action.OrganizationID,
		UserID:          run.action.UserID,
		TargetEmail:     run.action.TargetEmail,
		TargetFirstName: run.action.TargetFirstName,
		TargetLastName:  run.action.TargetLastName,
		ActionType:      run.action.ActionType,
		Step:            step,
		Config:          run.config,
		Attempt:         run.attempt,
	}
	res, err := e.adapter.ExecuteStep(ctx, req)
	if err != nil {
		return res, StepExecutionError(step, err.Error(), err)
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "provider reported failure"
		}
		return res, StepExecutionError(step, reason, nil)
	}
	return res, nil
}

func (e *Executor) succeed(ctx context.Context, run *stepRun, step, detail string) {
	run.result.StepsCompleted = append(run.result.StepsCompleted, step)
	e.record(ctx, run, step, model.StepSuccess, detail, "")
}

func (e *Executor) fail(ctx context.Context, run *stepRun, step, reason string) {
	run.result.StepsFailed = append(run.result.StepsFailed, step)
	run.result.Errors = append(run.result.Errors, reason)
	e.record(ctx, run, step, model.StepFailed, "", reason)
}

func (e *Executor) record(ctx context.Context, run *stepRun, step string, outcome model.StepOutcome, detail, errText string) {
	metrics.StepOutcomes.WithLabelValues(string(run.action.ActionType), step, string(outcome)).Inc()
	defer func() {
		if r := recover(); r != nil {
			metrics.LogSinkFailures.Inc()
			e.logger.Error("Lifecycle log sink panicked",
				zap.String("action_id", run.action.ID.String()),
				zap.String("step", step),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	e.sink.Record(ctx, &model.LifecycleLogEntry{
		ActionID:       run.action.ID,
		OrganizationID: run.action.OrganizationID,
		ActionType:     run.action.ActionType,
		StepName:       step,
		Outcome:        outcome,
		Detail:         detail,
		Error:          errText,
		Attempt:        run.attempt,
		Metadata: datatypes.JSONMap{
			"target_email":  run.action.TargetEmail,
			"scheduled_for": run.action.ScheduledFor.UTC().Format(time.RFC3339),
		},
		Timestamp: e.now(),
	})
}
