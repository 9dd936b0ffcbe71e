package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
	"github.com/helios/lifecycle/pkg/store/memory"
)

type fakeAdapter struct {
	mu       sync.Mutex
	failures map[string]string
	errs     map[string]error
	calls    []StepRequest
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{failures: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeAdapter) failStep(step, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[step] = reason
}

func (f *fakeAdapter) errorStep(step string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[step] = err
}

func (f *fakeAdapter) ExecuteStep(_ context.Context, req StepRequest) (StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err, ok := f.errs[req.Step]; ok {
		return StepResult{}, err
	}
	if reason, ok := f.failures[req.Step]; ok {
		return StepResult{Success: false, Error: reason}, nil
	}
	return StepResult{Success: true, Detail: req.Step + " done"}, nil
}

func (f *fakeAdapter) stepCalls(step string) []StepRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []StepRequest
	for _, c := range f.calls {
		if c.Step == step {
			out = append(out, c)
		}
	}
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	entries []model.LifecycleLogEntry
}

func (s *recordingSink) Record(_ context.Context, entry *model.LifecycleLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
}

func (s *recordingSink) steps(outcome model.StepOutcome) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		if e.Outcome == outcome {
			out = append(out, e.StepName)
		}
	}
	return out
}

type panickingSink struct{}

func (panickingSink) Record(context.Context, *model.LifecycleLogEntry) {
	panic("log backend exploded")
}

type staticTemplates struct {
	defaults model.JSONB
	err      error
}

func (s staticTemplates) TemplateDefaults(context.Context, uuid.UUID, uuid.UUID, model.ActionType) (model.JSONB, error) {
	return s.defaults, s.err
}

var errProviderDown = errors.New("provider unavailable")

type harness struct {
	svc     *Service
	store   *memory.ActionStore
	adapter *fakeAdapter
	sink    *recordingSink
	org     uuid.UUID
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   memory.NewActionStore(),
		adapter: newFakeAdapter(),
		sink:    &recordingSink{},
		org:     uuid.New(),
		now:     time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}
	h.svc = h.newService("scheduler-a")
	return h
}

func (h *harness) newService(instance string) *Service {
	return h.newServiceWith(instance, h.store, h.adapter)
}

func (h *harness) newServiceWith(instance string, actions store.ActionStore, adapter Adapter) *Service {
	svc := NewService(Dependencies{
		Actions: actions,
		Adapter: adapter,
		Sink:    h.sink,
		Logger:  zap.NewNop(),
	}, Settings{
		Scheduler:         SchedulerConfig{InstanceID: instance, BatchSize: 50, Concurrency: 4, LeaseTTL: 30 * time.Minute},
		DefaultMaxRetries: 3,
		Backoff:           Backoff{Base: time.Minute, Max: time.Hour},
	})
	svc.SetClock(func() time.Time { return h.now })
	return svc
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) scheduleOnboard(t *testing.T, scheduledFor time.Time) *model.ScheduledAction {
	t.Helper()
	action, err := h.svc.ScheduleAction(context.Background(), h.org, ScheduleRequest{
		ActionType:      model.ActionOnboard,
		TargetEmail:     "ada@example.com",
		TargetFirstName: "Ada",
		TargetLastName:  "Lovelace",
		ScheduledFor:    scheduledFor,
	}, "admin@example.com")
	require.NoError(t, err)
	return action
}

func (h *harness) scheduleSuspend(t *testing.T, req ScheduleRequest) *model.ScheduledAction {
	t.Helper()
	userID := uuid.New()
	req.ActionType = model.ActionSuspend
	req.UserID = &userID
	if req.ScheduledFor.IsZero() {
		req.ScheduledFor = h.now.Add(-time.Minute)
	}
	action, err := h.svc.ScheduleAction(context.Background(), h.org, req, "admin@example.com")
	require.NoError(t, err)
	return action
}

func (h *harness) get(t *testing.T, id uuid.UUID) *model.ScheduledAction {
	t.Helper()
	action, err := h.svc.GetAction(context.Background(), id)
	require.NoError(t, err)
	return action
}

// approvingStore approves the action right before every pending update lands.
type approvingStore struct {
	*memory.ActionStore
}

func (s approvingStore) UpdatePending(ctx context.Context, id uuid.UUID, patch store.ActionPatch, now time.Time) (bool, error) {
	if _, err := s.ActionStore.Approve(ctx, id, "manager@example.com", "approved original config", now); err != nil {
		return false, err
	}
	return s.ActionStore.UpdatePending(ctx, id, patch, now)
}

// hookAdapter runs hook once, before the first step it executes.
type hookAdapter struct {
	*fakeAdapter
	fired atomic.Bool
	hook  func()
}

func (a *hookAdapter) ExecuteStep(ctx context.Context, req StepRequest) (StepResult, error) {
	if a.fired.CompareAndSwap(false, true) {
		a.hook()
	}
	return a.fakeAdapter.ExecuteStep(ctx, req)
}
