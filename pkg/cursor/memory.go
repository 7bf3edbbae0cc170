package cursor

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is an in-process Locker. It serves tests and single-node
// deployments without postgres; cross-process exclusivity needs the pgx
// implementation.
type MemoryLocker struct {
	mu      sync.Mutex
	active  map[string]time.Time // topic id -> lease expiry
	lastRun map[string]time.Time
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		active:  make(map[string]time.Time),
		lastRun: make(map[string]time.Time),
	}
}

type memoryLease struct {
	locker  *MemoryLocker
	topicID string
	once    sync.Once
}

// TryAcquire implements Locker.
func (m *MemoryLocker) TryAcquire(_ context.Context, topicID string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, ok := m.active[topicID]; ok && time.Now().Before(expiry) {
		return nil, ErrBusy
	}
	m.active[topicID] = time.Now().Add(ttl)
	return &memoryLease{locker: m, topicID: topicID}, nil
}

// LastRun implements Locker.
func (m *MemoryLocker) LastRun(_ context.Context, topicID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun[topicID], nil
}

func (l *memoryLease) Release(_ context.Context, completed bool) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		defer l.locker.mu.Unlock()
		delete(l.locker.active, l.topicID)
		if completed {
			l.locker.lastRun[l.topicID] = time.Now()
		}
	})
	return nil
}
