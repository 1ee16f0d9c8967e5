package consolidator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reev-core/internal/session"
)

// fakeStore is an in-memory Store grounded on the teacher's inmem Mongo test
// doubles (features/session/mongo/clients/mongo/inmem), enforcing the same
// at-most-one-per-execution_id constraint the real unique index would.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]ConsolidatedSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]ConsolidatedSession{}}
}

func (f *fakeStore) GetConsolidated(_ context.Context, executionID string) (*ConsolidatedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[executionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeStore) PutConsolidated(_ context.Context, rec ConsolidatedSession) (ConsolidatedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.records[rec.ExecutionID]; ok {
		return existing, nil
	}
	f.records[rec.ExecutionID] = rec
	return rec, nil
}

func sealedStepLog(sessionID, toolName string, score float64, success bool, start, end time.Time) *session.Log {
	log := session.NewLog(sessionID, "bench-5", "agent", start)
	_ = log.Append(session.Event{
		Kind:     session.EventToolCall,
		ToolCall: &session.ToolCallPayload{ToolName: toolName, StartedAt: start},
	}, start)
	_ = log.Append(session.Event{
		Kind:       session.EventToolResult,
		ToolResult: &session.ToolResultPayload{ToolName: toolName, Status: session.ToolResultSuccess},
	}, start)
	status := session.StatusFailed
	if success {
		status = session.StatusSucceeded
	}
	_ = log.Seal(end, session.FinalResult{Success: success, Score: score, Status: status})
	return log
}

func sequentialID(id string) func() string {
	return func() string { return id }
}

func TestConsolidator_CompoundSwapThenLendProducesAggregateMetadata(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(store, sequentialID("consolidated-1"), func() time.Time { return now })

	start := now
	mid := now.Add(time.Second)
	end := now.Add(3 * time.Second)

	steps := []StepSession{
		{StepIndex: 2, Log: sealedStepLog("session-2", "lend_earn_deposit", 1.0, true, mid, end)},
		{StepIndex: 1, Log: sealedStepLog("session-1", "jupiter_swap", 1.0, true, start, mid)},
	}

	rec, err := c.Consolidate(context.Background(), "exec-5", steps)
	require.NoError(t, err)
	require.Equal(t, "exec-5", rec.ExecutionID)
	require.Len(t, rec.Steps, 2)
	require.Equal(t, 1, rec.Steps[0].StepIndex)
	require.Equal(t, "session-1", rec.Steps[0].SessionID)
	require.Equal(t, 2, rec.Steps[1].StepIndex)

	require.Equal(t, 2, rec.Metadata.TotalTools)
	require.Equal(t, 100.0, rec.Metadata.SuccessRate)
	require.Equal(t, 2, rec.Metadata.SessionCount)
	require.Equal(t, 1.0, rec.Metadata.AvgScore)
}

func TestConsolidator_RepeatedConsolidationIsIdempotent(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(store, sequentialID("consolidated-first"), func() time.Time { return now })

	steps := []StepSession{
		{StepIndex: 1, Log: sealedStepLog("session-1", "get_account_balance", 0.9, true, now, now.Add(time.Second))},
	}

	first, err := c.Consolidate(context.Background(), "exec-6", steps)
	require.NoError(t, err)
	require.Equal(t, "consolidated-first", first.ConsolidatedSessionID)

	// A second consolidation attempt (e.g. a retried consolidator run) must
	// be a no-op returning the original winning record, even though newID
	// would mint a different identifier this time (§5, §8 invariant 2).
	c2 := New(store, sequentialID("consolidated-second"), func() time.Time { return now })
	second, err := c2.Consolidate(context.Background(), "exec-6", steps)
	require.NoError(t, err)
	require.Equal(t, first.ConsolidatedSessionID, second.ConsolidatedSessionID)

	require.Len(t, store.records, 1)
}

func TestConsolidator_ConsolidateRejectsUnsealedStep(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(store, sequentialID("consolidated-x"), func() time.Time { return now })

	open := session.NewLog("session-open", "bench-5", "agent", now)
	steps := []StepSession{{StepIndex: 1, Log: open}}

	_, err := c.Consolidate(context.Background(), "exec-7", steps)
	require.Error(t, err)
}

func TestConsolidator_StatusPendingWhenNoStepSessionsExist(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(store, sequentialID("unused"), func() time.Time { return now })

	report, err := c.Status(context.Background(), "exec-missing", nil)
	require.NoError(t, err)
	require.Equal(t, StatusPending, report.Status)
	require.False(t, report.Complete)
}

func TestConsolidator_StatusInProgressWhenStepSessionsExistButNotYetConsolidated(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(store, sequentialID("unused"), func() time.Time { return now })

	steps := []StepSession{
		{StepIndex: 1, Log: sealedStepLog("session-1", "get_account_balance", 0.9, true, now, now.Add(time.Second))},
	}

	report, err := c.Status(context.Background(), "exec-8", steps)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, report.Status)
	require.False(t, report.Complete)
}

func TestConsolidator_StatusCompletedAfterConsolidation(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(store, sequentialID("consolidated-9"), func() time.Time { return now })

	steps := []StepSession{
		{StepIndex: 1, Log: sealedStepLog("session-1", "get_account_balance", 0.9, true, now, now.Add(time.Second))},
	}

	_, err := c.Consolidate(context.Background(), "exec-9", steps)
	require.NoError(t, err)

	report, err := c.Status(context.Background(), "exec-9", steps)
	require.NoError(t, err)
	require.True(t, report.Complete)
	require.Equal(t, StatusCompleted, report.Status)
	require.Equal(t, "consolidated-9", report.ConsolidatedSessionID)
	require.NotNil(t, report.Metadata)
}

func TestConsolidator_StatusTimeoutWhenSealedStepsOutlastTheDeadline(t *testing.T) {
	store := newFakeStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := start.Add(DefaultTimeout + time.Minute)
	c := New(store, sequentialID("unused"), func() time.Time { return late })

	steps := []StepSession{
		{StepIndex: 1, Log: sealedStepLog("session-1", "get_account_balance", 0.9, true, start, start.Add(time.Second))},
	}

	report, err := c.Status(context.Background(), "exec-10", steps)
	require.NoError(t, err)
	require.Equal(t, StatusTimeout, report.Status)
	require.False(t, report.Complete)
}
