// Package coordstore wraps the external coordination store (Redis) used
// exclusively by MatchQueue and Health. No session state is ever written
// here — sessions are sticky to the process that owns them, per the
// in-memory-authoritative-state decision recorded in DESIGN.md.
package coordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned when no coordination store URL was supplied;
// callers should treat this the same as a permanent startup failure.
var ErrNotConfigured = errors.New("coordination store is not configured")

// Client is a thin wrapper over a redis client exposing only what MatchQueue
// and Health need. Apart from ErrNotConfigured, errors are returned as the
// redis client reports them.
type Client struct {
	rdb     *redis.Client
	timeout time.Duration
}

// Option customises Client construction.
type Option func(*Client)

// WithTimeout bounds every round trip issued through the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New parses a redis connection URL (e.g. "redis://host:6379/0") and
// constructs a Client. It does not dial; use Ping to verify reachability.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, ErrNotConfigured
	}
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse coordination store url: %w", err)
	}
	client := &Client{rdb: redis.NewClient(options), timeout: 2 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Raw exposes the underlying redis client for package-internal callers
// (matchqueue) that need list/script primitives beyond Ping.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

// Timeout returns the configured per-call timeout.
func (c *Client) Timeout() time.Duration {
	if c == nil || c.timeout <= 0 {
		return 2 * time.Second
	}
	return c.timeout
}

// Ping verifies the coordination store is reachable, used by Health to
// decide between "Healthy" and "Degraded".
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
