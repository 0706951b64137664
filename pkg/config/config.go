package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/julianshen/twspoc/pkg/enums"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "NOTIFSYNC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App        AppConfig
	Remote     RemoteConfig
	Push       PushConfig
	Supervisor SupervisorConfig
	Fallback   FallbackConfig
	Confirm    ConfirmConfig
	Redis      RedisConfig
	GCP        GCPConfig
	PubSub     PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces cross-field requirements envconfig cannot express.
func (c *Config) Validate() error {
	if c.Remote.Offline {
		return nil
	}
	if _, err := url.ParseRequestURI(c.Remote.BaseURL); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvRemoteBaseURL, err)
	}
	if strings.TrimSpace(c.Remote.UserID) == "" {
		return fmt.Errorf("%s is required", EnvRemoteUserID)
	}
	transport, err := enums.ParsePushTransport(strings.ToLower(strings.TrimSpace(c.Push.Transport)))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvPushTransport, err)
	}
	switch transport {
	case enums.PushTransportRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("either %s or %s is required for redis push transport", EnvRedisURL, EnvRedisAddr)
		}
	case enums.PushTransportPubSub:
		if strings.TrimSpace(c.GCP.ProjectID) == "" {
			return fmt.Errorf("%s is required for pubsub push transport", EnvGCPProjectID)
		}
		if strings.TrimSpace(c.PubSub.NotificationSubscription) == "" {
			return fmt.Errorf("%s is required for pubsub push transport", EnvPubSubNotificationSub)
		}
	}
	if c.Supervisor.MaxDelay < c.Supervisor.BaseDelay {
		return fmt.Errorf("%s must not be below %s", EnvSupervisorMaxDelay, EnvSupervisorBaseDelay)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"NOTIFSYNC_APP_ENV" default:"dev"`
	Port         string `envconfig:"NOTIFSYNC_APP_PORT" default:"8090"`
	LogLevel     string `envconfig:"NOTIFSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NOTIFSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// RemoteConfig points the client at the notification authority.
type RemoteConfig struct {
	BaseURL         string        `envconfig:"NOTIFSYNC_REMOTE_BASE_URL" default:"http://localhost:8080"`
	UserID          string        `envconfig:"NOTIFSYNC_REMOTE_USER_ID" default:"user123"`
	RequestTimeout  time.Duration `envconfig:"NOTIFSYNC_REMOTE_REQUEST_TIMEOUT" default:"10s"`
	SnapshotTimeout time.Duration `envconfig:"NOTIFSYNC_REMOTE_SNAPSHOT_TIMEOUT" default:"10s"`
	MaxEventBytes   int           `envconfig:"NOTIFSYNC_REMOTE_MAX_EVENT_BYTES" default:"1048576"`

	// Offline bypasses the remote entirely and serves the synthetic feed from startup.
	Offline bool `envconfig:"NOTIFSYNC_REMOTE_OFFLINE" default:"false"`
}

type PushConfig struct {
	Transport string `envconfig:"NOTIFSYNC_PUSH_TRANSPORT" default:"sse"`
}

// TransportKind returns the normalized transport, defaulting to sse.
func (p PushConfig) TransportKind() enums.PushTransport {
	kind, err := enums.ParsePushTransport(strings.ToLower(strings.TrimSpace(p.Transport)))
	if err != nil {
		return enums.PushTransportSSE
	}
	return kind
}

type SupervisorConfig struct {
	BaseDelay      time.Duration `envconfig:"NOTIFSYNC_SUPERVISOR_BASE_DELAY" default:"1s"`
	MaxDelay       time.Duration `envconfig:"NOTIFSYNC_SUPERVISOR_MAX_DELAY" default:"30s"`
	JitterFraction float64       `envconfig:"NOTIFSYNC_SUPERVISOR_JITTER" default:"0.2"`
	StableAfter    time.Duration `envconfig:"NOTIFSYNC_SUPERVISOR_STABLE_AFTER" default:"10s"`

	// MaxRetries <= 0 disables the retry budget.
	MaxRetries int `envconfig:"NOTIFSYNC_SUPERVISOR_MAX_RETRIES" default:"5"`
}

type FallbackConfig struct {
	Interval  time.Duration `envconfig:"NOTIFSYNC_FALLBACK_INTERVAL" default:"15s"`
	SeedCount int           `envconfig:"NOTIFSYNC_FALLBACK_SEED_COUNT" default:"2"`
}

type ConfirmConfig struct {
	Timeout       time.Duration `envconfig:"NOTIFSYNC_CONFIRM_TIMEOUT" default:"10s"`
	MaxAttempts   int           `envconfig:"NOTIFSYNC_CONFIRM_MAX_ATTEMPTS" default:"5"`
	RetryInterval time.Duration `envconfig:"NOTIFSYNC_CONFIRM_RETRY_INTERVAL" default:"5s"`
}

type RedisConfig struct {
	URL           string        `envconfig:"NOTIFSYNC_REDIS_URL"`
	Address       string        `envconfig:"NOTIFSYNC_REDIS_ADDR"`
	Password      string        `envconfig:"NOTIFSYNC_REDIS_PASSWORD"`
	DB            int           `envconfig:"NOTIFSYNC_REDIS_DB" default:"0"`
	PoolSize      int           `envconfig:"NOTIFSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns  int           `envconfig:"NOTIFSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout   time.Duration `envconfig:"NOTIFSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout   time.Duration `envconfig:"NOTIFSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout  time.Duration `envconfig:"NOTIFSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
	ChannelPrefix string        `envconfig:"NOTIFSYNC_REDIS_CHANNEL_PREFIX" default:"notifsync"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"NOTIFSYNC_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"NOTIFSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationSubscription string `envconfig:"NOTIFSYNC_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}
