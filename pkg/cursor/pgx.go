package cursor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxLocker implements Locker on top of the bl_analysis_cursors table.
// The acquire statement is a single INSERT ... ON CONFLICT compare-and-set,
// so exclusivity holds across processes; expired leases are taken over.
type PgxLocker struct {
	db dbConn
}

// NewPgxLocker creates a postgres-backed locker.
func NewPgxLocker(pool *pgxpool.Pool) *PgxLocker {
	return &PgxLocker{db: pool}
}

type pgxLease struct {
	locker  *PgxLocker
	topicID string
	token   string
	once    sync.Once
}

// TryAcquire implements Locker.
func (p *PgxLocker) TryAcquire(ctx context.Context, topicID string, ttl time.Duration) (Lease, error) {
	if topicID == "" {
		return nil, errors.New("cursor topic id is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	token, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	var returnedTopic string
	err = p.db.QueryRow(ctx, tryAcquireSQL, topicID, token, ttl.Milliseconds()).Scan(&returnedTopic)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusy
		}
		return nil, err
	}

	return &pgxLease{locker: p, topicID: topicID, token: token}, nil
}

// LastRun implements Locker.
func (p *PgxLocker) LastRun(ctx context.Context, topicID string) (time.Time, error) {
	var last *time.Time
	err := p.db.QueryRow(ctx, lastRunSQL, topicID).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

func (l *pgxLease) Release(ctx context.Context, completed bool) error {
	var err error
	l.once.Do(func() {
		if completed {
			_, err = l.locker.db.Exec(ctx, releaseCompletedSQL, l.topicID, l.token)
			return
		}
		_, err = l.locker.db.Exec(ctx, releaseSQL, l.topicID, l.token)
	})
	return err
}

const tryAcquireSQL = `
INSERT INTO bl_analysis_cursors (topic_id, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (topic_id) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE bl_analysis_cursors.expires_at IS NULL
   OR bl_analysis_cursors.expires_at < now()
RETURNING topic_id;
`

const releaseSQL = `
UPDATE bl_analysis_cursors
SET locked_by = NULL, expires_at = NULL
WHERE topic_id = $1 AND locked_by = $2;
`

const releaseCompletedSQL = `
UPDATE bl_analysis_cursors
SET locked_by = NULL, expires_at = NULL, last_run_at = now()
WHERE topic_id = $1 AND locked_by = $2;
`

const lastRunSQL = `
SELECT last_run_at FROM bl_analysis_cursors WHERE topic_id = $1;
`
