package util

import (
	"context"
	"errors"
	"testing"
)

func TestRetryWithContext(t *testing.T) {
	tests := []struct {
		name      string
		maxTries  int
		failUntil int
		wantValue int
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "succeeds first try",
			maxTries:  3,
			failUntil: 0,
			wantValue: 42,
			wantCalls: 1,
		},
		{
			name:      "succeeds after failures",
			maxTries:  3,
			failUntil: 2,
			wantValue: 42,
			wantCalls: 3,
		},
		{
			name:      "exhausts attempts",
			maxTries:  2,
			failUntil: 5,
			wantErr:   true,
			wantCalls: 2,
		},
		{
			name:      "zero maxTries defaults to one",
			maxTries:  0,
			failUntil: 0,
			wantValue: 42,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := RetryWithContext(context.Background(), tt.maxTries, func(context.Context) (int, error) {
				calls++
				if calls <= tt.failUntil {
					return 0, errors.New("transient")
				}
				return 42, nil
			})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.wantValue {
					t.Errorf("got %d, want %d", got, tt.wantValue)
				}
			}
			if calls != tt.wantCalls {
				t.Errorf("got %d calls, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithContext(ctx, 3, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("should not retry")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no calls on canceled context, got %d", calls)
	}
}

func TestRetryWithContextStopsOnDeadline(t *testing.T) {
	calls := 0
	_, err := RetryWithContext(context.Background(), 5, func(context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("deadline errors should not be retried, got %d calls", calls)
	}
}
