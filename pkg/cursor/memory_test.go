package cursor

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLockerExclusive(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	lease, err := locker.TryAcquire(ctx, "topic-a", time.Minute)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := locker.TryAcquire(ctx, "topic-a", time.Minute); err != ErrBusy {
		t.Fatalf("expected ErrBusy on second acquire, got %v", err)
	}

	// Other topics are independent.
	other, err := locker.TryAcquire(ctx, "topic-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire on other topic failed: %v", err)
	}
	_ = other.Release(ctx, false)

	if err := lease.Release(ctx, false); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	again, err := locker.TryAcquire(ctx, "topic-a", time.Minute)
	if err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	_ = again.Release(ctx, false)
}

func TestMemoryLockerExpiredTakeover(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	if _, err := locker.TryAcquire(ctx, "topic-a", time.Nanosecond); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	lease, err := locker.TryAcquire(ctx, "topic-a", time.Minute)
	if err != nil {
		t.Fatalf("takeover of expired lease failed: %v", err)
	}
	_ = lease.Release(ctx, false)
}

func TestMemoryLockerLastRun(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	last, err := locker.LastRun(ctx, "topic-a")
	if err != nil {
		t.Fatalf("last run failed: %v", err)
	}
	if !last.IsZero() {
		t.Fatalf("expected zero last run before any release, got %v", last)
	}

	lease, err := locker.TryAcquire(ctx, "topic-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := lease.Release(ctx, true); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	last, err = locker.LastRun(ctx, "topic-a")
	if err != nil {
		t.Fatalf("last run failed: %v", err)
	}
	if last.IsZero() {
		t.Fatal("expected last run to be recorded after completed release")
	}

	// Release without completion must not move the stamp.
	lease2, _ := locker.TryAcquire(ctx, "topic-a", time.Minute)
	_ = lease2.Release(ctx, false)
	again, _ := locker.LastRun(ctx, "topic-a")
	if !again.Equal(last) {
		t.Fatalf("last run moved on uncompleted release: %v != %v", again, last)
	}
}
