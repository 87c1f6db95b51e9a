package matchqueue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process FIFO implementing Queue, used only by tests.
type MemoryQueue struct {
	mu      sync.Mutex
	entries []string
}

// NewMemoryQueue constructs an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue appends playerID to the tail. Duplicates are tolerated per spec §3
// and removed on pop.
func (q *MemoryQueue) Enqueue(_ context.Context, playerID string) error {
	if playerID == "" {
		return nil
	}
	q.mu.Lock()
	q.entries = append(q.entries, playerID)
	q.mu.Unlock()
	return nil
}

// Remove deletes every occurrence of playerID.
func (q *MemoryQueue) Remove(_ context.Context, playerID string) error {
	if playerID == "" {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, entry := range q.entries {
		if entry != playerID {
			kept = append(kept, entry)
		}
	}
	q.entries = kept
	return nil
}

// PairPop pops the two oldest distinct entries and drops every other queued
// occurrence of either player. If only one unique player is available it is
// left in the queue and ok is false.
func (q *MemoryQueue) PairPop(_ context.Context) (a, b string, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return "", "", false, nil
	}
	a = q.entries[0]
	rest := q.entries[1:]
	for i, candidate := range rest {
		if candidate == a {
			continue
		}
		b = candidate
		kept := make([]string, 0, len(rest)-i-1)
		for _, entry := range rest[i+1:] {
			if entry != a && entry != b {
				kept = append(kept, entry)
			}
		}
		q.entries = kept
		return a, b, true, nil
	}
	return "", "", false, nil
}

// Depth returns the current queue length.
func (q *MemoryQueue) Depth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}
