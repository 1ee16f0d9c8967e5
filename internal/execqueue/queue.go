// Package execqueue implements the §5 concurrency and backpressure model:
// a `max_concurrent_executions` cap with a `Queued` state for excess
// submissions, and an execution-scoped fork-exclusivity lock so two
// executions never mutate the same local fork concurrently. Grounded on
// the teacher's features/stream/pulse/clients/pulse.Client layering
// (interface-captured subset of a *redis.Client passed in by the caller,
// Options struct, New constructor) but built directly on go-redis/v9
// primitives (INCR/DECR counters, SET NX locks) since goa.design/pulse's
// stream abstraction has no cap/lock primitive of its own — see DESIGN.md.
package execqueue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ExecutionState is the closed transition set an external caller observes
// for a submitted ExecutionRequest (§6 "Execution-state surface").
type ExecutionState string

const (
	StateQueued    ExecutionState = "Queued"
	StateRunning   ExecutionState = "Running"
	StateSucceeded ExecutionState = "Succeeded"
	StateFailed    ExecutionState = "Failed"
	StateTimedOut  ExecutionState = "TimedOut"
)

// ErrAtCapacity is returned by TryAcquire when max_concurrent_executions is
// already reached; the caller should leave the execution in StateQueued
// and retry later rather than treat this as a fatal error.
var ErrAtCapacity = errors.New("execqueue: at max_concurrent_executions capacity")

// redisClient captures the subset of *redis.Client the queue needs, so
// tests can substitute an in-memory fake instead of a live Redis server.
type redisClient interface {
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	GetDel(ctx context.Context, key string) (string, error)
	Get(ctx context.Context, key string) (string, error)
}

// Queue enforces the execution-level concurrency cap and fork-exclusivity
// locking described in §5.
type Queue struct {
	redis         redisClient
	maxConcurrent int
	keyPrefix     string
}

// New returns a Queue capping concurrent executions at maxConcurrent.
// keyPrefix namespaces this queue's Redis keys (e.g. by environment) so
// multiple harness deployments can share one Redis instance.
func New(redis redisClient, maxConcurrent int, keyPrefix string) (*Queue, error) {
	if redis == nil {
		return nil, errors.New("redis client is required")
	}
	if maxConcurrent <= 0 {
		return nil, errors.New("max_concurrent_executions must be positive")
	}
	return &Queue{redis: redis, maxConcurrent: maxConcurrent, keyPrefix: keyPrefix}, nil
}

func (q *Queue) activeCountKey() string {
	return fmt.Sprintf("%s:active_count", q.keyPrefix)
}

func (q *Queue) forkLockKey(forkID string) string {
	return fmt.Sprintf("%s:fork_lock:%s", q.keyPrefix, forkID)
}

// TryAcquire attempts to claim one of the max_concurrent_executions slots
// for executionID. On success the caller transitions to StateRunning; on
// ErrAtCapacity the caller remains StateQueued (§5 "Backpressure": "No
// implicit retries at the queue layer" — the caller, not this package,
// decides when to retry).
func (q *Queue) TryAcquire(ctx context.Context, executionID string) error {
	n, err := q.redis.Incr(ctx, q.activeCountKey())
	if err != nil {
		return err
	}
	if n > int64(q.maxConcurrent) {
		if _, decErr := q.redis.Decr(ctx, q.activeCountKey()); decErr != nil {
			return decErr
		}
		return ErrAtCapacity
	}
	return nil
}

// Release frees the slot held for executionID. Callers must call Release
// exactly once per successful TryAcquire, typically via defer.
func (q *Queue) Release(ctx context.Context, executionID string) error {
	_, err := q.redis.Decr(ctx, q.activeCountKey())
	return err
}

// AcquireFork claims exclusive mutation rights over forkID for executionID,
// for up to ttl (§5 "Shared-resource policy": "MUST acquire fork
// exclusivity via an execution-scoped lock ... forbids concurrent mutation
// of the same fork by two executions"). It returns false, nil if another
// execution currently holds the lock.
func (q *Queue) AcquireFork(ctx context.Context, forkID, executionID string, ttl time.Duration) (bool, error) {
	return q.redis.SetNX(ctx, q.forkLockKey(forkID), executionID, ttl)
}

// ReleaseFork releases the fork lock held by executionID, only if
// executionID is still the current holder (a lock that already expired or
// was re-acquired by a different execution is left untouched, avoiding the
// classic "release someone else's lock" bug).
func (q *Queue) ReleaseFork(ctx context.Context, forkID, executionID string) error {
	holder, err := q.redis.Get(ctx, q.forkLockKey(forkID))
	if err != nil {
		return err
	}
	if holder != executionID {
		return nil
	}
	_, err = q.redis.GetDel(ctx, q.forkLockKey(forkID))
	return err
}
