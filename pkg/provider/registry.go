package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/lifecycle"
)

type StepHandler func(ctx context.Context, req lifecycle.StepRequest) (lifecycle.StepResult, error)

// Registry dispatches steps to handlers by name. Steps without a handler go
// to the fallback, or fail when there is none.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]StepHandler
	fallback StepHandler
}

var _ lifecycle.Adapter = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]StepHandler)}
}

func (r *Registry) Handle(step string, handler StepHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[step] = handler
}

func (r *Registry) Fallback(handler StepHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = handler
}

func (r *Registry) ExecuteStep(ctx context.Context, req lifecycle.StepRequest) (lifecycle.StepResult, error) {
	r.mu.RLock()
	handler, ok := r.handlers[req.Step]
	if !ok {
		handler = r.fallback
	}
	r.mu.RUnlock()

	if handler == nil {
		return lifecycle.StepResult{}, fmt.Errorf("no handler registered for step %q", req.Step)
	}
	return handler(ctx, req)
}

// NewDryRunAdapter accepts every step without calling a provider.
func NewDryRunAdapter(logger *zap.Logger) *Registry {
	r := NewRegistry()
	r.Fallback(func(ctx context.Context, req lifecycle.StepRequest) (lifecycle.StepResult, error) {
		logger.Info("Dry run step",
			zap.String("action_id", req.ActionID.String()),
			zap.String("action_type", string(req.ActionType)),
			zap.String("step", req.Step))
		return lifecycle.StepResult{Success: true, Detail: "dry run"}, nil
	})
	return r
}
