// Package redis delivers session completion events to a Redis pub/sub
// channel.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/chunkwire/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "chunkwire:session_completed"

// DefaultTimeout bounds each PUBLISH attempt.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel defaults to DefaultChannel.
	Channel string
	// Timeout bounds each attempt (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
	// BaseBackoff is the delay before the first retry (default 500ms).
	BaseBackoff time.Duration
}

// Adapter publishes session completion events on one channel.
type Adapter struct {
	config Config
	retry  adapter.RetryPolicy
	client *goredis.Client
}

// New parses the URL and returns an adapter. No connection is made until
// the first publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	retry, err := adapter.RetryPolicy{
		Retries:     cfg.Retries,
		BaseBackoff: cfg.BaseBackoff,
		Timeout:     cfg.Timeout,
	}.Normalize(DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}
	cfg.Timeout, cfg.BaseBackoff = retry.Timeout, retry.BaseBackoff
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}

	return &Adapter{
		config: cfg,
		retry:  retry,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event with PUBLISH, retrying any failure.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := adapter.Encode(event)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.retry, func(ctx context.Context) error {
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	})
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
