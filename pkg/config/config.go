package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kubernetes KubernetesConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	Logging    LoggingConfig
	Kafka      KafkaConfig
	Outbox     OutboxRelayConfig
	Scheduler  SchedulerConfig
	Provider   ProviderConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
}

type KubernetesConfig struct {
	InCluster  bool   `mapstructure:"in_cluster"`
	KubeConfig string `mapstructure:"kubeconfig"`
	Namespace  string `mapstructure:"namespace"`
}

type ClickHouseConfig struct {
	Hosts    []string `mapstructure:"hosts"`
	Database string   `mapstructure:"database"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`         // json or console
	StorageDriver string `mapstructure:"storage_driver"` // postgres, clickhouse or memory
	RetentionDays int    `mapstructure:"retention_days"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	ClientID   string   `mapstructure:"client_id"`
	EventTopic string   `mapstructure:"event_topic"`
	DLQTopic   string   `mapstructure:"dlq_topic"`
}

type OutboxRelayConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	BatchSize          int           `mapstructure:"batch_size"`
	PublishedRetention time.Duration `mapstructure:"published_retention"`
}

// SchedulerConfig controls the tick loop and the retry policy applied to failed actions.
type SchedulerConfig struct {
	InstanceID        string        `mapstructure:"instance_id"`
	TickSchedule      string        `mapstructure:"tick_schedule"`
	BatchSize         int           `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
	LeaseTTL          time.Duration `mapstructure:"lease_ttl"`
	DefaultMaxRetries int           `mapstructure:"default_max_retries"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	RetryJitter       float64       `mapstructure:"retry_jitter"`
}

type ProviderConfig struct {
	Mode             string        `mapstructure:"mode"` // webhook or dry_run
	Endpoint         string        `mapstructure:"endpoint"`
	Timeout          time.Duration `mapstructure:"timeout"`
	CredentialSource string        `mapstructure:"credential_source"` // kubernetes or static
	StaticToken      string        `mapstructure:"static_token"`
	SecretPrefix     string        `mapstructure:"secret_prefix"`
	CredentialTTL    time.Duration `mapstructure:"credential_ttl"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/helios/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("HELIOS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults registers every default on v. Exposed so tests can build a config
// without touching the global viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("kubernetes.namespace", "helios")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "helios")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.storage_driver", "postgres")
	v.SetDefault("logging.retention_days", 90)
	v.SetDefault("kafka.client_id", "helios-outbox-relay")
	v.SetDefault("kafka.event_topic", "helios.lifecycle.events")
	v.SetDefault("kafka.dlq_topic", "helios.lifecycle.events.dlq")
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.published_retention", "168h")
	v.SetDefault("scheduler.tick_schedule", "@every 30s")
	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.lease_ttl", "30m")
	v.SetDefault("scheduler.default_max_retries", 3)
	v.SetDefault("scheduler.retry_base_delay", "1m")
	v.SetDefault("scheduler.retry_max_delay", "1h")
	v.SetDefault("scheduler.retry_jitter", 0.2)
	v.SetDefault("provider.mode", "dry_run")
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.credential_source", "static")
	v.SetDefault("provider.secret_prefix", "idp-credentials-")
	v.SetDefault("provider.credential_ttl", "10m")
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
