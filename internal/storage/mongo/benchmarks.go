package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// BenchmarkStore persists the raw benchmark YAML documents named in §6,
// keyed by the benchmark's declared id, so a stored benchmark can be
// re-loaded by id without re-reading the source file.
type BenchmarkStore struct {
	coll collection
}

// NewBenchmarkStore builds a BenchmarkStore over client's benchmarks
// collection.
func NewBenchmarkStore(client *Client) *BenchmarkStore {
	return &BenchmarkStore{coll: client.Benchmarks}
}

type benchmarkDocument struct {
	BenchmarkID string `bson:"benchmark_id"`
	YAML        string `bson:"yaml"`
}

// Put upserts the raw YAML source for benchmarkID.
func (s *BenchmarkStore) Put(ctx context.Context, benchmarkID, yaml string) error {
	if benchmarkID == "" {
		return errors.New("benchmark id is required")
	}
	_, _, _, err := s.coll.UpdateOne(ctx,
		bson.M{"benchmark_id": benchmarkID},
		bson.M{"$set": bson.M{"benchmark_id": benchmarkID, "yaml": yaml}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// Get returns the raw YAML source for benchmarkID, or ("", nil) if absent.
func (s *BenchmarkStore) Get(ctx context.Context, benchmarkID string) (string, error) {
	var doc benchmarkDocument
	err := s.coll.FindOne(ctx, bson.M{"benchmark_id": benchmarkID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return "", nil
		}
		return "", err
	}
	return doc.YAML, nil
}
