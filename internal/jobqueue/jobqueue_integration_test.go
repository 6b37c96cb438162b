//go:build integration
// +build integration

package jobqueue

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func setupTestQueue(t *testing.T) *Queue {
	ctx := context.Background()
	q, err := New(ctx, "localhost:6379", "", 0)
	if err != nil {
		t.Skipf("Skipping test: Redis not available: %v", err)
		return nil
	}
	return q
}

func TestTryLock_RejectsSecondSubmission(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()
	id := fmt.Sprintf("youtube_test%d", time.Now().UnixNano())
	defer q.Unlock(ctx, id)

	if err := q.TryLock(ctx, id); err != nil {
		t.Fatalf("first TryLock should succeed: %v", err)
	}
	if err := q.TryLock(ctx, id); err != ErrAlreadyRunning {
		t.Fatalf("second TryLock should return ErrAlreadyRunning, got %v", err)
	}
}

func TestEnqueueDequeue(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()
	id := fmt.Sprintf("youtube_dq%d", time.Now().UnixNano())

	if err := q.Enqueue(ctx, id); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got != id {
		t.Fatalf("expected %q, got %q", id, got)
	}
}
