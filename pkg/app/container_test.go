package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/config"
	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/provider"
	"github.com/helios/lifecycle/pkg/store/memory"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))
	cfg.Logging.StorageDriver = LogDriverMemory
	cfg.Redis.Addresses = nil
	cfg.Scheduler.InstanceID = "container-test"
	cfg.Auth.JWTSecret = "test"
	return &cfg
}

func TestContainerWiresMemoryStack(t *testing.T) {
	cfg := testConfig(t)
	actions := memory.NewActionStore()

	c, err := NewContainer(context.Background(), cfg, zap.NewNop(), WithActionStore(actions))
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	assert.Nil(t, c.Notifier)
	assert.IsType(t, &provider.Registry{}, c.Adapter)
	assert.IsType(t, &memory.LogStore{}, c.Logs)
	require.NotNil(t, c.Service)
	require.NotNil(t, c.Tokens)

	org := uuid.New()
	action, err := c.Service.ScheduleAction(context.Background(), org, lifecycle.ScheduleRequest{
		ActionType:   model.ActionRestore,
		TargetEmail:  "jane@example.com",
		ScheduledFor: time.Now().Add(-time.Minute),
	}, "ops")
	require.NoError(t, err)

	result, err := c.Service.ProcessPendingActions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	logs, err := c.Logs.ListByAction(context.Background(), action.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

func TestContainerRejectsUnknownDrivers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.Mode = "carrier_pigeon"
	_, err := NewContainer(context.Background(), cfg, zap.NewNop(), WithActionStore(memory.NewActionStore()))
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Logging.StorageDriver = "s3"
	_, err = NewContainer(context.Background(), cfg, zap.NewNop(),
		WithActionStore(memory.NewActionStore()))
	assert.Error(t, err)
}
