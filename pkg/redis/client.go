package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/julianshen/twspoc/pkg/config"
	"github.com/julianshen/twspoc/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	defaultNamespace    = "notifsync"
	notificationsPrefix = "notifications"
)

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Publish(context.Context, string, any) *redis.IntCmd
}

// messageSource is the receive side of a redis pub/sub subscription.
type messageSource interface {
	ReceiveMessage(context.Context) (*redis.Message, error)
	Close() error
}

type subscribeFunc func(ctx context.Context, channel string) (messageSource, error)

// Client wraps the redis connection helpers used by the push transport.
type Client struct {
	store     cmdable
	raw       *redis.Client
	subscribe subscribeFunc
	namespace string
	logg      *logger.Logger
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}

	client := &Client{
		store:     raw,
		raw:       raw,
		namespace: namespaceOrDefault(cfg.ChannelPrefix),
		logg:      logg,
	}
	client.subscribe = func(ctx context.Context, channel string) (messageSource, error) {
		ps := raw.Subscribe(ctx, channel)
		// Wait for the subscription confirmation so dial failures surface here.
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
		return ps, nil
	}
	return client, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// NotificationChannel returns the pub/sub channel carrying userID's notifications.
func (c *Client) NotificationChannel(userID string) string {
	return c.buildKey(notificationsPrefix, userID)
}

// Publish sends one notification record to userID's channel and returns the number of
// receivers.
func (c *Client) Publish(ctx context.Context, userID string, payload []byte) (int64, error) {
	if c.store == nil {
		return 0, errNotInitialized
	}
	return c.store.Publish(ctx, c.NotificationChannel(userID), payload).Result()
}

// Subscribe opens a subscription on userID's notification channel.
func (c *Client) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if c.subscribe == nil {
		return nil, errNotInitialized
	}
	channel := c.NotificationChannel(userID)
	src, err := c.subscribe(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "channel", channel), "redis subscription established")
	}
	return &Subscription{channel: channel, src: src}, nil
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	namespace := namespaceOrDefault(c.namespace)
	if len(parts) == 0 {
		return namespace
	}
	clean := []string{namespace}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}

func namespaceOrDefault(value string) string {
	trimmed := strings.Trim(strings.TrimSpace(value), ":")
	if trimmed == "" {
		return defaultNamespace
	}
	return trimmed
}

// Subscription yields message payloads from one channel.
type Subscription struct {
	channel string
	src     messageSource
}

// Channel returns the subscribed channel name.
func (s *Subscription) Channel() string {
	return s.channel
}

// Next blocks until the next message arrives.
func (s *Subscription) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.src.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(msg.Payload), nil
}

func (s *Subscription) Close() error {
	return s.src.Close()
}
