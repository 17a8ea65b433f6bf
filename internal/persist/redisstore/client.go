// Package redisstore persists per-display refresh rate policies in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/adaptive-refresh/internal/observability"
	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
)

// Tier names one of the two policy slots of a display.
type Tier string

const (
	TierAdministrative Tier = "administrative"
	TierOverride       Tier = "override"
)

const keyPrefix = "refresh"

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     8,
		MinIdleConns: 1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Key is the Redis key holding one tier of a display's policy.
func Key(display string, tier Tier) string {
	return fmt.Sprintf("%s:%s:policy:%s", keyPrefix, display, tier)
}

func (c *Client) SavePolicy(ctx context.Context, display string, tier Tier, p policy.Policy) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	k := Key(display, tier)
	if err := c.rdb.Set(ctx, k, b, 0).Err(); err != nil {
		observability.IncPersistError("save")
		return fmt.Errorf("redis SET %q: %w", k, err)
	}
	return nil
}

// LoadPolicy reports ok=false when nothing is stored for the tier.
func (c *Client) LoadPolicy(ctx context.Context, display string, tier Tier) (policy.Policy, bool, error) {
	k := Key(display, tier)
	b, err := c.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return policy.Policy{}, false, nil
	}
	if err != nil {
		observability.IncPersistError("load")
		return policy.Policy{}, false, fmt.Errorf("redis GET %q: %w", k, err)
	}
	var p policy.Policy
	if err := json.Unmarshal(b, &p); err != nil {
		return policy.Policy{}, false, fmt.Errorf("decode %q: %w", k, err)
	}
	return p, true, nil
}

func (c *Client) DeletePolicy(ctx context.Context, display string, tier Tier) error {
	k := Key(display, tier)
	if err := c.rdb.Del(ctx, k).Err(); err != nil {
		observability.IncPersistError("delete")
		return fmt.Errorf("redis DEL %q: %w", k, err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
