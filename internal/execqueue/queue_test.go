package execqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-memory double for redisClient, exercising the same
// INCR/DECR/SETNX/GET/GETDEL semantics the real go-redis adapter relies on.
type fakeRedis struct {
	mu       sync.Mutex
	counters map[string]int64
	strings  map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counters: map[string]int64{}, strings: map[string]string{}}
}

func (f *fakeRedis) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeRedis) Decr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]--
	return f.counters[key], nil
}

func (f *fakeRedis) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.strings[key]; ok {
		return false, nil
	}
	f.strings[key] = value
	return true, nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.strings[key], nil
}

func (f *fakeRedis) GetDel(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val := f.strings[key]
	delete(f.strings, key)
	return val, nil
}

func TestQueue_TryAcquireEnforcesMaxConcurrentExecutions(t *testing.T) {
	q, err := New(newFakeRedis(), 2, "reev")
	require.NoError(t, err)

	require.NoError(t, q.TryAcquire(context.Background(), "exec-1"))
	require.NoError(t, q.TryAcquire(context.Background(), "exec-2"))

	err = q.TryAcquire(context.Background(), "exec-3")
	require.ErrorIs(t, err, ErrAtCapacity)
}

func TestQueue_ReleaseFreesASlotForTheNextExecution(t *testing.T) {
	q, err := New(newFakeRedis(), 1, "reev")
	require.NoError(t, err)

	require.NoError(t, q.TryAcquire(context.Background(), "exec-1"))
	require.ErrorIs(t, q.TryAcquire(context.Background(), "exec-2"), ErrAtCapacity)

	require.NoError(t, q.Release(context.Background(), "exec-1"))
	require.NoError(t, q.TryAcquire(context.Background(), "exec-2"))
}

func TestQueue_AcquireForkIsExclusiveAcrossExecutions(t *testing.T) {
	q, err := New(newFakeRedis(), 10, "reev")
	require.NoError(t, err)

	acquired, err := q.AcquireFork(context.Background(), "fork-a", "exec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = q.AcquireFork(context.Background(), "fork-a", "exec-2", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired, "a second execution must not acquire the same fork lock")
}

func TestQueue_ReleaseForkOnlyReleasesItsOwnLock(t *testing.T) {
	q, err := New(newFakeRedis(), 10, "reev")
	require.NoError(t, err)

	acquired, err := q.AcquireFork(context.Background(), "fork-a", "exec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// exec-2 never held the lock, so its release must be a no-op.
	require.NoError(t, q.ReleaseFork(context.Background(), "fork-a", "exec-2"))
	acquired, err = q.AcquireFork(context.Background(), "fork-a", "exec-3", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired, "exec-1's lock must still be held after exec-2's no-op release")

	require.NoError(t, q.ReleaseFork(context.Background(), "fork-a", "exec-1"))
	acquired, err = q.AcquireFork(context.Background(), "fork-a", "exec-3", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired, "the fork lock must be free once its true holder releases it")
}

func TestNew_RejectsNonPositiveMaxConcurrent(t *testing.T) {
	_, err := New(newFakeRedis(), 0, "reev")
	require.Error(t, err)
}
