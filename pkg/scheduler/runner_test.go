package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store/memory"
)

type countingTicker struct {
	calls int32
	err   error
}

func (c *countingTicker) ProcessPendingActions(ctx context.Context) (lifecycle.TickResult, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return lifecycle.TickResult{}, c.err
	}
	return lifecycle.TickResult{Processed: int(n), Succeeded: int(n)}, nil
}

func TestNewRunnerRejectsBadSchedule(t *testing.T) {
	_, err := NewRunner(&countingTicker{}, zap.NewNop(), Options{TickSchedule: "every now and then"})
	assert.Error(t, err)
}

func TestTickRecordsResult(t *testing.T) {
	ticker := &countingTicker{}
	r, err := NewRunner(ticker, zap.NewNop(), Options{})
	require.NoError(t, err)

	r.Tick()
	r.Tick()
	assert.Equal(t, 2, r.LastTick().Processed)

	ticker.err = errors.New("database down")
	r.Tick()
	assert.Equal(t, 2, r.LastTick().Processed)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	ticker := &countingTicker{}
	r, err := NewRunner(ticker, zap.NewNop(), Options{TickSchedule: "@every 1s"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&ticker.calls) >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestPruneLogsDeletesExpiredEntries(t *testing.T) {
	logs := memory.NewLogStore()
	actionID := uuid.New()
	require.NoError(t, logs.CreateBatch(context.Background(), []*model.LifecycleLogEntry{
		{ActionID: actionID, StepName: "finalize", Outcome: model.StepSuccess, Timestamp: time.Now().AddDate(0, 0, -40)},
		{ActionID: actionID, StepName: "finalize", Outcome: model.StepSuccess, Timestamp: time.Now()},
	}))

	r, err := NewRunner(&countingTicker{}, zap.NewNop(), Options{Logs: logs, RetentionDays: 30})
	require.NoError(t, err)
	r.PruneLogs()

	remaining, err := logs.ListByAction(context.Background(), actionID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
