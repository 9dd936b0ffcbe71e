package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "@every 30s", cfg.Scheduler.TickSchedule)
	assert.Equal(t, 3, cfg.Scheduler.DefaultMaxRetries)
	assert.Equal(t, time.Minute, cfg.Scheduler.RetryBaseDelay)
	assert.Equal(t, time.Hour, cfg.Scheduler.RetryMaxDelay)
	assert.InDelta(t, 0.2, cfg.Scheduler.RetryJitter, 0.0001)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.LeaseTTL)
	assert.Equal(t, "dry_run", cfg.Provider.Mode)
	assert.Equal(t, "postgres", cfg.Logging.StorageDriver)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addresses)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "helios",
		Password: "secret",
		Database: "lifecycle",
		SSLMode:  "require",
	}

	assert.Equal(t, "host=db port=5433 user=helios password=secret dbname=lifecycle sslmode=require", cfg.DSN())
}
