// Package mongo hosts the MongoDB-backed persistence for C7 (§6
// "Persistent store"): the five named collections (benchmarks,
// execution_sessions, session_logs, agent_performance,
// consolidated_sessions), grounded on the teacher's
// features/session/mongo/clients/mongo.Client (Options-configured client
// wrapping *mongo.Client, ensureIndexes on construction, a narrow
// hand-rolled collection/cursor interface set so tests can substitute
// fakes without a live server). Generalized from the teacher's two
// collections (agent_sessions, agent_runs) to this domain's five, and
// retargeted from go.mongodb.org/mongo-driver to the v2 driver this
// module depends on.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	CollectionBenchmarks         = "benchmarks"
	CollectionExecutionSessions  = "execution_sessions"
	CollectionSessionLogs        = "session_logs"
	CollectionAgentPerformance   = "agent_performance"
	CollectionConsolidatedSessions = "consolidated_sessions"

	defaultOpTimeout = 5 * time.Second
)

// Options configures the Client.
type Options struct {
	// URI is the MongoDB connection string (mongodb:// or mongodb+srv://).
	// Required unless Client is supplied directly (e.g. from a test harness).
	URI      string
	Client   *mongodriver.Client
	Database string
	Timeout  time.Duration
}

// Client wraps the five §6 collections behind narrow interfaces so package
// consumers (session, consolidator) depend on small Store types rather than
// this package or the driver directly.
type Client struct {
	mongo    *mongodriver.Client
	database *mongodriver.Database
	timeout  time.Duration

	Benchmarks         collection
	ExecutionSessions  collection
	SessionLogs        collection
	AgentPerformance   collection
	ConsolidatedSessions collection
}

// Connect dials MongoDB per opts, ensures the collections' indexes exist
// (notably the unique index on consolidated_sessions.execution_id, §6), and
// returns a ready Client.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	mc := opts.Client
	if mc == nil {
		if opts.URI == "" {
			return nil, errors.New("mongo URI or an existing client is required")
		}
		client, err := mongodriver.Connect(options.Client().ApplyURI(opts.URI))
		if err != nil {
			return nil, err
		}
		mc = client
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := mc.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, err
	}

	db := mc.Database(opts.Database)
	c := &Client{
		mongo:    mc,
		database: db,
		timeout:  timeout,

		Benchmarks:           mongoCollection{coll: db.Collection(CollectionBenchmarks)},
		ExecutionSessions:    mongoCollection{coll: db.Collection(CollectionExecutionSessions)},
		SessionLogs:          mongoCollection{coll: db.Collection(CollectionSessionLogs)},
		AgentPerformance:     mongoCollection{coll: db.Collection(CollectionAgentPerformance)},
		ConsolidatedSessions: mongoCollection{coll: db.Collection(CollectionConsolidatedSessions)},
	}

	idxCtx, idxCancel := context.WithTimeout(ctx, timeout)
	defer idxCancel()
	if err := c.ensureIndexes(idxCtx); err != nil {
		return nil, err
	}
	return c, nil
}

// Close disconnects the underlying driver client.
func (c *Client) Close(ctx context.Context) error {
	return c.mongo.Disconnect(ctx)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// ensureIndexes creates the unique constraint that backs the at-most-once
// consolidation invariant (§5, §8 invariant 2) plus the lookup indexes the
// stores in this package rely on.
func (c *Client) ensureIndexes(ctx context.Context) error {
	if _, err := c.ConsolidatedSessions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "execution_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := c.SessionLogs.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := c.AgentPerformance.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "benchmark_id", Value: 1}, {Key: "agent_type", Value: 1}},
	}); err != nil {
		return err
	}
	if _, err := c.Benchmarks.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "benchmark_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	return nil
}

// collection is the narrow surface every store in this package needs,
// mirroring the teacher's hand-rolled collection/cursor/indexView trio so
// tests can substitute an in-memory fake (see fakeCollection in
// mongo_test.go) instead
// of depending on a live server or testcontainers-go for unit-level tests.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	InsertOne(ctx context.Context, doc any) error
	UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (matched, modified, upserted int64, err error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
	Err() error
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c mongoCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (int64, int64, int64, error) {
	res, err := c.coll.UpdateOne(ctx, filter, update, opts...)
	if err != nil {
		return 0, 0, 0, err
	}
	var upserted int64
	if res.UpsertedID != nil {
		upserted = 1
	}
	return res.MatchedCount, res.ModifiedCount, upserted, nil
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
