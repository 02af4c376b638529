// Package viewers tracks live audience presence per stream. The counters are
// ephemeral by design: the datastore keeps the durable peak and total
// figures, while this package answers "how many are watching right now".
package viewers

import (
	"context"
	"sync"
)

// Tracker counts concurrent viewers per stream.
type Tracker interface {
	Join(ctx context.Context, streamID string) (int64, error)
	Leave(ctx context.Context, streamID string) (int64, error)
	Count(ctx context.Context, streamID string) (int64, error)
	Reset(ctx context.Context, streamID string) error
	Close() error
}

// MemoryTracker is the in-process fallback used when no Redis is configured.
// Counts do not survive a restart, which matches how long a broadcast does.
type MemoryTracker struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{counts: make(map[string]int64)}
}

func (t *MemoryTracker) Join(_ context.Context, streamID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[streamID]++
	return t.counts[streamID], nil
}

func (t *MemoryTracker) Leave(_ context.Context, streamID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[streamID] > 0 {
		t.counts[streamID]--
	}
	return t.counts[streamID], nil
}

func (t *MemoryTracker) Count(_ context.Context, streamID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[streamID], nil
}

func (t *MemoryTracker) Reset(_ context.Context, streamID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, streamID)
	return nil
}

func (t *MemoryTracker) Close() error { return nil }
