// Package matchqueue implements the external-store-backed FIFO of waiting
// players with atomic pair-pop (spec §4.4). The production implementation
// runs against the coordination store; MemoryQueue exists only for Hub and
// Scheduler unit tests and is never reachable from the production
// composition root — degraded-mode fallback to in-process matchmaking is
// explicitly not provided (a permanent coordination-store failure at
// startup disables matchmaking entirely; bot matches remain available).
package matchqueue

import "context"

// Queue is the FIFO of waiting players, backed by the coordination store.
type Queue interface {
	// Enqueue appends playerID to the tail of the queue.
	Enqueue(ctx context.Context, playerID string) error
	// Remove removes every occurrence of playerID from the queue.
	Remove(ctx context.Context, playerID string) error
	// PairPop atomically pops the two oldest distinct players and removes any
	// other queued occurrence of either. If fewer than two distinct players
	// are queued, it leaves the queue as it was and ok is false.
	PairPop(ctx context.Context) (a, b string, ok bool, err error)
	// Depth returns the current queue length.
	Depth(ctx context.Context) (int, error)
}
