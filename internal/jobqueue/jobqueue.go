// Package jobqueue provides a Redis-backed waiting list (with no length
// bound) for submitted transcription ids, generalizing the teacher's per-user
// running lock into a per-canonical-ID single-flight lock: spec.md §4.1
// requires that a second submission for the same ID while one is already
// in flight is rejected with 409, not queued twice.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAlreadyRunning is returned by TryLock when another submission for the
// same canonical ID is already in flight.
var ErrAlreadyRunning = errors.New("job already in flight for this id")

const (
	keyPrefix    = "scribe"
	waitingList  = keyPrefix + ":waiting"
	runningHash  = keyPrefix + ":running"
	blockTimeout = 5 * time.Second
)

// Queue wraps a Redis client with the waiting-list/running-lock pattern.
type Queue struct {
	client *redis.Client
}

// New connects to the given Redis address and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	slog.Info("job queue connected", "addr", addr)
	return &Queue{client: client}, nil
}

// NewWithClient wraps an existing client, for tests (miniredis or similar).
func NewWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Close releases the underlying Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// TryLock atomically claims the single-flight lock for id. Returns
// ErrAlreadyRunning if another submission already holds it.
func (q *Queue) TryLock(ctx context.Context, id string) error {
	acquired, err := q.client.HSetNX(ctx, runningHash, id, time.Now().UTC().Format(time.RFC3339)).Result()
	if err != nil {
		return fmt.Errorf("acquire job lock: %w", err)
	}
	if !acquired {
		return ErrAlreadyRunning
	}
	return nil
}

// Unlock releases the single-flight lock for id, called once the
// orchestrator reaches a terminal state (completed or failed).
func (q *Queue) Unlock(ctx context.Context, id string) error {
	if err := q.client.HDel(ctx, runningHash, id).Err(); err != nil {
		return fmt.Errorf("release job lock: %w", err)
	}
	return nil
}

// IsRunning reports whether id currently holds the single-flight lock.
func (q *Queue) IsRunning(ctx context.Context, id string) (bool, error) {
	exists, err := q.client.HExists(ctx, runningHash, id).Result()
	if err != nil {
		return false, fmt.Errorf("check job lock: %w", err)
	}
	return exists, nil
}

// Enqueue pushes id onto the waiting list for a background worker to pick
// up. The frontend service processes submissions in-process (spec.md §5:
// "background tasks spawned on submission acknowledgement") and uses only
// the single-flight lock, and the mail worker submits over HTTP, so no
// component in this repository calls Enqueue or Dequeue.
func (q *Queue) Enqueue(ctx context.Context, id string) error {
	if err := q.client.LPush(ctx, waitingList, id).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	slog.Info("job enqueued", "id", id)
	return nil
}

// Dequeue blocks up to blockTimeout waiting for a queued id. Returns ""
// with a nil error on timeout (no job available), matching the teacher's
// BRPOP contract.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	result, err := q.client.BRPop(ctx, blockTimeout, waitingList).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("dequeue job: %w", err)
	}
	if len(result) < 2 {
		return "", fmt.Errorf("unexpected BRPOP result: %v", result)
	}
	return result[1], nil
}
