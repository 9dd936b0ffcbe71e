package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/app"
	"github.com/helios/lifecycle/pkg/auth"
	"github.com/helios/lifecycle/pkg/config"
	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store/memory"
)

func newRuntime(t *testing.T) (*runtime, *bytes.Buffer, *memory.ActionStore) {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))
	cfg.Logging.StorageDriver = app.LogDriverMemory
	cfg.Redis.Addresses = nil
	cfg.Scheduler.InstanceID = "ctl-test"
	cfg.Auth.JWTSecret = "test"

	actions := memory.NewActionStore()
	out := &bytes.Buffer{}
	rt := &runtime{
		ctx: context.Background(),
		cfg: &cfg,
		out: out,
		container: func(ctx context.Context) (*app.Container, error) {
			return app.NewContainer(ctx, &cfg, zap.NewNop(), app.WithActionStore(actions))
		},
	}
	return rt, out, actions
}

func schedule(t *testing.T, rt *runtime, req lifecycle.ScheduleRequest) *model.ScheduledAction {
	t.Helper()
	c, err := rt.container(rt.ctx)
	require.NoError(t, err)
	defer c.Close()
	action, err := c.Service.ScheduleAction(rt.ctx, uuid.New(), req, "test")
	require.NoError(t, err)
	return action
}

func TestTickCommand(t *testing.T) {
	rt, out, _ := newRuntime(t)
	schedule(t, rt, lifecycle.ScheduleRequest{
		ActionType:   model.ActionSuspend,
		TargetEmail:  "jane@example.com",
		ScheduledFor: time.Now().Add(-time.Minute),
	})

	require.NoError(t, execute(rt, []string{"tick"}))

	var result lifecycle.TickResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
}

func TestApproveCommandRecordsActor(t *testing.T) {
	rt, out, actions := newRuntime(t)
	action := schedule(t, rt, lifecycle.ScheduleRequest{
		ActionType:       model.ActionDelete,
		TargetEmail:      "bob@example.com",
		RequiresApproval: true,
		ScheduledFor:     time.Now().Add(time.Hour),
	})

	require.NoError(t, execute(rt, []string{"--actor", "lead@example.com", "approve", action.ID.String(), "--notes", "ok"}))
	assert.Contains(t, out.String(), "lead@example.com")

	stored, err := actions.GetByID(context.Background(), action.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, "lead@example.com", *stored.ApprovedBy)
	assert.Equal(t, "ok", stored.ApprovalNotes)
}

func TestCancelCommandReportsInvalidState(t *testing.T) {
	rt, _, _ := newRuntime(t)
	action := schedule(t, rt, lifecycle.ScheduleRequest{
		ActionType:   model.ActionRestore,
		TargetEmail:  "bob@example.com",
		ScheduledFor: time.Now().Add(time.Hour),
	})

	require.NoError(t, execute(rt, []string{"cancel", action.ID.String(), "--reason", "duplicate"}))
	err := execute(rt, []string{"cancel", action.ID.String()})
	require.Error(t, err)
	assert.True(t, lifecycle.IsInvalidState(err))
}

func TestListCommandValidatesFlags(t *testing.T) {
	rt, out, _ := newRuntime(t)
	assert.Error(t, execute(rt, []string{"list", "--status", "sleeping"}))

	require.NoError(t, execute(rt, []string{"list", "--status", "pending"}))
	assert.Contains(t, out.String(), `"total": 0`)
}

func TestTokenCommandIssuesValidToken(t *testing.T) {
	rt, out, _ := newRuntime(t)
	require.NoError(t, execute(rt, []string{"token", "ops@example.com", "--scope", "scheduler:tick"}))

	claims, err := auth.NewOperatorTokenManager(rt.cfg.Auth).ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.True(t, claims.HasScope(auth.ScopeSchedule))
}
