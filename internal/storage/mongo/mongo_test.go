package mongo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"reev-core/internal/consolidator"
	"reev-core/internal/session"
)

// fakeCollection is an in-memory double for the package's unexported
// collection interface, grounded on the teacher's
// features/session/mongo/clients/mongo/inmem in-memory Store: it backs the
// same narrow surface the real mongoCollection exposes so the stores in
// this package can be exercised without a live server or
// testcontainers-go.
type fakeCollection struct {
	mu   sync.Mutex
	docs []bson.M
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{}
}

func toBSONMap(doc any) bson.M {
	raw, err := bson.Marshal(doc)
	if err != nil {
		panic(err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		panic(err)
	}
	return m
}

func matches(doc bson.M, filter bson.M) bool {
	for k, v := range filter {
		if doc[k] != v {
			return false
		}
	}
	return true
}

func (f *fakeCollection) InsertOne(_ context.Context, doc any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := toBSONMap(doc)
	if key, ok := m["execution_id"]; ok {
		for _, existing := range f.docs {
			if existing["execution_id"] == key {
				return duplicateKeyError()
			}
		}
	}
	if key, ok := m["session_id"]; ok {
		for _, existing := range f.docs {
			if existing["session_id"] == key {
				return duplicateKeyError()
			}
		}
	}
	f.docs = append(f.docs, m)
	return nil
}

// duplicateKeyError fabricates the shape mongodriver.IsDuplicateKeyError
// recognizes (a WriteException carrying a code-11000 WriteError), so the
// in-memory fake exercises ConsolidatedStore's real duplicate-key handling
// path rather than a string-matched substitute.
func duplicateKeyError() error {
	return mongodriver.WriteException{
		WriteErrors: mongodriver.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}},
	}
}

func (f *fakeCollection) FindOne(_ context.Context, filter any, _ ...options.Lister[options.FindOneOptions]) singleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	fm, _ := filter.(bson.M)
	for _, doc := range f.docs {
		if matches(doc, fm) {
			return fakeSingleResult{doc: doc}
		}
	}
	return fakeSingleResult{err: mongodriver.ErrNoDocuments}
}

func (f *fakeCollection) Find(_ context.Context, filter any, _ ...options.Lister[options.FindOptions]) (cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fm, _ := filter.(bson.M)
	var matched []bson.M
	for _, doc := range f.docs {
		if matches(doc, fm) {
			matched = append(matched, doc)
		}
	}
	return &fakeCursor{docs: matched, pos: -1}, nil
}

func (f *fakeCollection) UpdateOne(_ context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (int64, int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fm, _ := filter.(bson.M)
	um, _ := update.(bson.M)
	set, _ := um["$set"].(bson.M)

	for i, doc := range f.docs {
		if matches(doc, fm) {
			for k, v := range set {
				f.docs[i][k] = v
			}
			return 1, 1, 0, nil
		}
	}
	doc := bson.M{}
	for k, v := range fm {
		doc[k] = v
	}
	for k, v := range set {
		doc[k] = v
	}
	f.docs = append(f.docs, doc)
	return 0, 0, 1, nil
}

func (f *fakeCollection) Indexes() indexView { return fakeIndexView{} }

type fakeSingleResult struct {
	doc bson.M
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	raw, err := bson.Marshal(r.doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, val)
}

func (r fakeSingleResult) Err() error { return r.err }

type fakeCursor struct {
	docs []bson.M
	pos  int
}

func (c *fakeCursor) Close(context.Context) error { return nil }
func (c *fakeCursor) Err() error                  { return nil }
func (c *fakeCursor) Next(context.Context) bool {
	c.pos++
	return c.pos < len(c.docs)
}
func (c *fakeCursor) Decode(val any) error {
	raw, err := bson.Marshal(c.docs[c.pos])
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, val)
}

type fakeIndexView struct{}

func (fakeIndexView) CreateOne(context.Context, mongodriver.IndexModel, ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return "", nil
}

func TestConsolidatedStore_PutThenGetRoundTrips(t *testing.T) {
	store := &ConsolidatedStore{coll: newFakeCollection()}
	rec := consolidator.ConsolidatedSession{
		ConsolidatedSessionID: "consolidated-1",
		ExecutionID:           "exec-1",
		Steps: []consolidator.StepSummary{
			{StepIndex: 1, SessionID: "session-1", ToolNames: []string{"jupiter_swap"}, Success: true},
		},
		Metadata:  consolidator.Metadata{AvgScore: 0.9, TotalTools: 1, SuccessRate: 100, SessionCount: 1},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	stored, err := store.PutConsolidated(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "consolidated-1", stored.ConsolidatedSessionID)

	got, err := store.GetConsolidated(context.Background(), "exec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, rec.ExecutionID, got.ExecutionID)
	require.Equal(t, 1, len(got.Steps))
	require.Equal(t, 100.0, got.Metadata.SuccessRate)
}

func TestConsolidatedStore_DuplicatePutReturnsWinningRecord(t *testing.T) {
	store := &ConsolidatedStore{coll: newFakeCollection()}
	first := consolidator.ConsolidatedSession{
		ConsolidatedSessionID: "consolidated-first",
		ExecutionID:           "exec-2",
		CreatedAt:             time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	second := consolidator.ConsolidatedSession{
		ConsolidatedSessionID: "consolidated-second",
		ExecutionID:           "exec-2",
		CreatedAt:             time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	_, err := store.PutConsolidated(context.Background(), first)
	require.NoError(t, err)

	got, err := store.PutConsolidated(context.Background(), second)
	require.NoError(t, err)
	require.Equal(t, "consolidated-first", got.ConsolidatedSessionID)
}

func TestSessionStore_WriteSealedRejectsUnsealedLog(t *testing.T) {
	store := &SessionStore{logs: newFakeCollection(), performance: newFakeCollection()}
	log := session.NewLog("session-open", "bench-1", "agent", time.Now())

	err := store.WriteSealed(context.Background(), log, "exec-3", "fingerprint")
	require.Error(t, err)
}

func TestSessionStore_WriteThenReadRoundTrips(t *testing.T) {
	store := &SessionStore{logs: newFakeCollection(), performance: newFakeCollection()}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log := session.NewLog("session-4", "bench-1", "claude-sonnet", now)
	_ = log.Append(session.Event{
		Kind:       session.EventToolResult,
		ToolResult: &session.ToolResultPayload{ToolName: "sol_transfer", Status: session.ToolResultSuccess},
	}, now)
	_ = log.Seal(now.Add(time.Second), session.FinalResult{Success: true, Score: 0.95, Status: session.StatusSucceeded})

	err := store.WriteSealed(context.Background(), log, "exec-4", "fp-abc")
	require.NoError(t, err)

	loaded, err := store.ReadSealed(context.Background(), "session-4")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "session-4", loaded.SessionID)
	require.True(t, loaded.Sealed())
	require.Equal(t, 0.95, loaded.FinalResult.Score)
	require.Len(t, loaded.Events, 1)
}

func TestBenchmarkStore_PutThenGetRoundTrips(t *testing.T) {
	store := &BenchmarkStore{coll: newFakeCollection()}
	err := store.Put(context.Background(), "sol-001", "id: sol-001\nprompt: send 1 SOL\n")
	require.NoError(t, err)

	yaml, err := store.Get(context.Background(), "sol-001")
	require.NoError(t, err)
	require.Contains(t, yaml, "sol-001")
}

func TestBenchmarkStore_GetMissingReturnsEmpty(t *testing.T) {
	store := &BenchmarkStore{coll: newFakeCollection()}
	yaml, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.Empty(t, yaml)
}
