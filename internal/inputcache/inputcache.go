// Package inputcache holds per-player latest-wins paddle targets with a
// bounded TTL, consumed once per tick by the Scheduler. It is adapted from
// the sequencing/freshness gate pattern used to throttle inbound control
// frames: a small mutex-guarded map, short critical sections, and an
// injectable clock so tests never depend on wall-clock sleeps.
package inputcache

import (
	"sync"
	"time"

	"pongserver/internal/engine"
)

// Clock exposes the current time; production code uses time.Now, tests inject a stub.
type Clock func() time.Time

type entry struct {
	y   float64
	at  time.Time
}

// Cache is a thread-safe, TTL-bounded store of the most recent paddle target
// reported by each player.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     Clock
	targets map[string]entry
}

// Option customises Cache construction.
type Option func(*Cache)

// WithClock overrides the time source used for TTL expiry checks.
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.now = clock
		}
	}
}

// New constructs a Cache with the given TTL (defaulting to 5s per spec).
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		targets: make(map[string]entry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func clampY(y float64) float64 {
	const maxY = engine.FieldHeight - engine.PaddleH
	if y < 0 {
		return 0
	}
	if y > maxY {
		return maxY
	}
	return y
}

// Put clamps y to the paddle's travel range and records it as the player's
// latest target.
func (c *Cache) Put(playerID string, y float64) {
	if c == nil || playerID == "" {
		return
	}
	c.mu.Lock()
	c.targets[playerID] = entry{y: clampY(y), at: c.now()}
	c.mu.Unlock()
}

// Take returns the latest non-expired target for each of the two players, or
// nil when absent or stale.
func (c *Cache) Take(player1ID, player2ID string) (y1, y2 *float64) {
	if c == nil {
		return nil, nil
	}
	now := c.now()
	c.mu.Lock()
	y1 = c.lookupLocked(player1ID, now)
	y2 = c.lookupLocked(player2ID, now)
	c.mu.Unlock()
	return
}

func (c *Cache) lookupLocked(playerID string, now time.Time) *float64 {
	if playerID == "" {
		return nil
	}
	e, ok := c.targets[playerID]
	if !ok {
		return nil
	}
	if now.Sub(e.at) > c.ttl {
		return nil
	}
	y := e.y
	return &y
}

// Forget clears cached state for a disconnected player.
func (c *Cache) Forget(playerID string) {
	if c == nil || playerID == "" {
		return
	}
	c.mu.Lock()
	delete(c.targets, playerID)
	c.mu.Unlock()
}
