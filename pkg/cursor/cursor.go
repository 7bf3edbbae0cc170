// Package cursor enforces the per-topic analysis cursor: at most one
// active analysis run per topic at any instant. Acquisition is a fail-fast
// compare-and-set; callers that find the cursor busy are expected to retry
// later rather than queue.
package cursor

import (
	"context"
	"errors"
	"time"
)

// ErrBusy means an analysis run is already active for the topic.
var ErrBusy = errors.New("analysis cursor busy")

// Lease is an acquired cursor. Release must be called exactly once, with
// completed=true only when the run finished successfully (this stamps the
// topic's last completed run time).
type Lease interface {
	Release(ctx context.Context, completed bool) error
}

// Locker hands out per-topic leases.
type Locker interface {
	// TryAcquire transitions the topic's cursor from inactive to active,
	// or fails with ErrBusy. The lease expires after ttl as a guard
	// against crashed runs; an expired lease may be taken over.
	TryAcquire(ctx context.Context, topicID string, ttl time.Duration) (Lease, error)

	// LastRun returns the time of the topic's last completed run, or the
	// zero time when it has never completed one.
	LastRun(ctx context.Context, topicID string) (time.Time, error)
}

const DefaultTTL = 5 * time.Minute
