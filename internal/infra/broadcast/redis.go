// Package broadcast publishes state-transition events to real-time
// subscribers over redis pub/sub.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/costwatch/internal/core/domain"
)

// Config holds redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

const (
	eventChannelPrefix = "costwatch:events:"
	// ConfigChannel carries configuration-invalidation signals from the
	// admin surface to running agents.
	ConfigChannel = "costwatch:config"
)

// Publisher emits transition events.
type Publisher interface {
	Publish(ctx context.Context, event domain.TransitionEvent) error
	Close() error
}

// Client wraps redis pub/sub for the broadcast stream.
type Client struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewClient creates a redis broadcast client and verifies the connection.
func NewClient(cfg Config, log *slog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, log: log}, nil
}

// Close closes the redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish emits one transition event on the tenant's channel. Config
// updates additionally go out on the shared config channel so every agent
// instance can invalidate its cache.
func (c *Client) Publish(ctx context.Context, event domain.TransitionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	channel := eventChannelPrefix + event.TenantID
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if event.Type == domain.EventConfigUpdated {
		if err := c.rdb.Publish(ctx, ConfigChannel, event.TenantID).Err(); err != nil {
			return fmt.Errorf("failed to publish config signal: %w", err)
		}
	}
	return nil
}

// SubscribeConfigInvalidations delivers tenant IDs whose configuration
// changed, until ctx is cancelled. The callback runs on the subscription
// goroutine.
func (c *Client) SubscribeConfigInvalidations(ctx context.Context, onInvalidate func(tenantID string)) {
	sub := c.rdb.Subscribe(ctx, ConfigChannel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.log.Debug("config invalidation received", "tenant", msg.Payload)
				onInvalidate(msg.Payload)
			}
		}
	}()
}

// NopPublisher drops all events. Used when redis is not configured and in
// tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event domain.TransitionEvent) error { return nil }
func (NopPublisher) Close() error                                                    { return nil }
