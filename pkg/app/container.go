package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/auth"
	"github.com/helios/lifecycle/pkg/config"
	"github.com/helios/lifecycle/pkg/eventbus"
	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/provider"
	"github.com/helios/lifecycle/pkg/store"
	"github.com/helios/lifecycle/pkg/store/clickhouse"
	"github.com/helios/lifecycle/pkg/store/memory"
	"github.com/helios/lifecycle/pkg/store/postgres"
	redisclient "github.com/helios/lifecycle/pkg/store/redis"
)

const (
	LogDriverPostgres   = "postgres"
	LogDriverClickHouse = "clickhouse"
	LogDriverMemory     = "memory"
)

// Container holds every long-lived dependency of a binary. Build it once with
// NewContainer and release it with Close.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *postgres.Store
	Redis *redisclient.Client

	Actions   store.ActionStore
	Events    store.EventStore
	Logs      store.LogStore
	Templates lifecycle.TemplateSource
	Adapter   lifecycle.Adapter
	Notifier  lifecycle.Notifier

	Service *lifecycle.Service
	Tokens  *auth.OperatorTokenManager

	closers []func() error
}

type containerConfig struct {
	actions  store.ActionStore
	logs     store.LogStore
	adapter  lifecycle.Adapter
	notifier lifecycle.Notifier
}

type Option func(*containerConfig)

// WithActionStore skips postgres and uses actions instead.
func WithActionStore(actions store.ActionStore) Option {
	return func(c *containerConfig) { c.actions = actions }
}

func WithLogStore(logs store.LogStore) Option {
	return func(c *containerConfig) { c.logs = logs }
}

func WithAdapter(adapter lifecycle.Adapter) Option {
	return func(c *containerConfig) { c.adapter = adapter }
}

func WithNotifier(notifier lifecycle.Notifier) Option {
	return func(c *containerConfig) { c.notifier = notifier }
}

func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	c := &Container{Config: cfg, Logger: logger}
	if err := c.initStorage(ctx, opt); err != nil {
		_ = c.Close()
		return nil, err
	}

	adapter, err := c.createAdapter(opt)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Adapter = adapter
	c.Notifier = c.createNotifier(ctx, opt)

	deps := lifecycle.Dependencies{
		Actions:   c.Actions,
		Adapter:   c.Adapter,
		Sink:      lifecycle.NewStoreSink(c.Logs, logger),
		Notifier:  c.Notifier,
		Templates: c.Templates,
		Logger:    logger,
	}

	c.Service = lifecycle.NewService(deps, lifecycle.Settings{
		Scheduler: lifecycle.SchedulerConfig{
			InstanceID:  cfg.Scheduler.InstanceID,
			BatchSize:   cfg.Scheduler.BatchSize,
			Concurrency: cfg.Scheduler.Concurrency,
			LeaseTTL:    cfg.Scheduler.LeaseTTL,
		},
		DefaultMaxRetries: cfg.Scheduler.DefaultMaxRetries,
		Backoff: lifecycle.Backoff{
			Base:   cfg.Scheduler.RetryBaseDelay,
			Max:    cfg.Scheduler.RetryMaxDelay,
			Jitter: cfg.Scheduler.RetryJitter,
		},
	})
	c.Tokens = auth.NewOperatorTokenManager(cfg.Auth)

	return c, nil
}

func (c *Container) initStorage(ctx context.Context, opt *containerConfig) error {
	needsDB := opt.actions == nil || (opt.logs == nil && c.Config.Logging.StorageDriver == LogDriverPostgres)
	if needsDB {
		db, err := postgres.NewStore(&c.Config.Database)
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		c.DB = db
		c.closers = append(c.closers, db.Close)

		if c.Config.Database.AutoMigrate {
			if err := db.AutoMigrate(); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}
	}

	if opt.actions != nil {
		c.Actions = opt.actions
		if events, ok := opt.actions.(store.EventStore); ok {
			c.Events = events
		}
	} else {
		c.Actions = postgres.NewActionRepository(c.DB.DB())
		c.Events = postgres.NewOutboxRepository(c.DB.DB())
		c.Templates = postgres.NewTemplateRepository(c.DB.DB())
	}

	if opt.logs != nil {
		c.Logs = opt.logs
		return nil
	}
	logs, err := c.createLogStore(ctx)
	if err != nil {
		return err
	}
	c.Logs = logs
	c.closers = append(c.closers, logs.Close)
	return nil
}

func (c *Container) createLogStore(ctx context.Context) (store.LogStore, error) {
	switch c.Config.Logging.StorageDriver {
	case LogDriverClickHouse:
		c.Logger.Info("using clickhouse for lifecycle logs")
		logs, err := clickhouse.NewLogStore(c.Config.ClickHouse, c.Config.Logging.RetentionDays, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("init clickhouse: %w", err)
		}
		if err := logs.EnsureSchema(ctx); err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("ensure clickhouse schema: %w", err)
		}
		return logs, nil
	case LogDriverMemory:
		c.Logger.Info("using memory for lifecycle logs")
		return memory.NewLogStore(), nil
	case LogDriverPostgres, "":
		c.Logger.Info("using postgres for lifecycle logs")
		return postgres.NewLogRepository(c.DB.DB()), nil
	default:
		return nil, fmt.Errorf("unsupported log storage driver %q", c.Config.Logging.StorageDriver)
	}
}

func (c *Container) createAdapter(opt *containerConfig) (lifecycle.Adapter, error) {
	if opt.adapter != nil {
		return opt.adapter, nil
	}

	cfg := c.Config.Provider
	switch cfg.Mode {
	case "dry_run", "":
		c.Logger.Warn("provider in dry run mode; no identity provider will be called")
		return provider.NewDryRunAdapter(c.Logger), nil
	case "webhook":
		creds, err := c.createCredentialSource()
		if err != nil {
			return nil, err
		}
		return provider.NewWebhookAdapter(cfg.Endpoint, cfg.Timeout, creds, c.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider mode %q", cfg.Mode)
	}
}

func (c *Container) createCredentialSource() (provider.CredentialSource, error) {
	cfg := c.Config.Provider
	switch cfg.CredentialSource {
	case "kubernetes":
		client, err := provider.NewKubernetesClient(c.Config.Kubernetes)
		if err != nil {
			return nil, fmt.Errorf("init kubernetes client: %w", err)
		}
		return provider.NewSecretCredentialSource(client, c.Config.Kubernetes.Namespace, cfg.SecretPrefix, cfg.CredentialTTL), nil
	case "static", "":
		return provider.StaticCredentialSource(cfg.StaticToken), nil
	default:
		return nil, fmt.Errorf("unsupported credential source %q", cfg.CredentialSource)
	}
}

// createNotifier connects to redis for live status events. Notifications are
// best-effort, so an unreachable redis only disables them.
func (c *Container) createNotifier(ctx context.Context, opt *containerConfig) lifecycle.Notifier {
	if opt.notifier != nil {
		return opt.notifier
	}
	if len(c.Config.Redis.Addresses) == 0 {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := redisclient.NewClient(pingCtx, &c.Config.Redis)
	if err != nil {
		c.Logger.Warn("status notifications disabled", zap.Error(err))
		return nil
	}
	c.Redis = client
	c.closers = append(c.closers, client.Close)
	return eventbus.NewActionNotifier(eventbus.NewBus(client.Client()), c.Logger)
}

// Close releases connections in reverse creation order.
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
