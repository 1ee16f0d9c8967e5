package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"

	"reev-core/internal/consolidator"
)

// ConsolidatedStore implements consolidator.Store against the
// consolidated_sessions collection. The at-most-once write (§5, §8
// invariant 2) is enforced by the unique index on execution_id ensured at
// Client construction: PutConsolidated treats a duplicate-key error as "a
// concurrent writer already won" and re-reads the winning record, rather
// than surfacing the race to the caller.
type ConsolidatedStore struct {
	coll collection
}

// NewConsolidatedStore builds a ConsolidatedStore over client's
// consolidated_sessions collection.
func NewConsolidatedStore(client *Client) *ConsolidatedStore {
	return &ConsolidatedStore{coll: client.ConsolidatedSessions}
}

type consolidatedDocument struct {
	ConsolidatedSessionID string                    `bson:"consolidated_session_id"`
	ExecutionID           string                    `bson:"execution_id"`
	Steps                 []stepSummaryDocument     `bson:"steps"`
	Metadata              consolidationMetaDocument `bson:"metadata"`
	CreatedAt             bson.DateTime             `bson:"created_at"`
}

type stepSummaryDocument struct {
	StepIndex  int      `bson:"step_index"`
	SessionID  string   `bson:"session_id"`
	ToolNames  []string `bson:"tool_names"`
	Success    bool     `bson:"success"`
	DurationMs int64    `bson:"duration_ms"`
}

type consolidationMetaDocument struct {
	AvgScore            float64 `bson:"avg_score"`
	TotalTools          int     `bson:"total_tools"`
	SuccessRate         float64 `bson:"success_rate"`
	ExecutionDurationMs int64   `bson:"execution_duration_ms"`
	SessionCount        int     `bson:"session_count"`
}

// GetConsolidated implements consolidator.Store.
func (s *ConsolidatedStore) GetConsolidated(ctx context.Context, executionID string) (*consolidator.ConsolidatedSession, error) {
	var doc consolidatedDocument
	err := s.coll.FindOne(ctx, bson.M{"execution_id": executionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	rec := fromConsolidatedDocument(doc)
	return &rec, nil
}

// PutConsolidated implements consolidator.Store's at-most-once insert.
func (s *ConsolidatedStore) PutConsolidated(ctx context.Context, rec consolidator.ConsolidatedSession) (consolidator.ConsolidatedSession, error) {
	doc := toConsolidatedDocument(rec)
	if err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			existing, getErr := s.GetConsolidated(ctx, rec.ExecutionID)
			if getErr != nil {
				return consolidator.ConsolidatedSession{}, getErr
			}
			if existing != nil {
				return *existing, nil
			}
		}
		return consolidator.ConsolidatedSession{}, err
	}
	return rec, nil
}

func toConsolidatedDocument(rec consolidator.ConsolidatedSession) consolidatedDocument {
	steps := make([]stepSummaryDocument, len(rec.Steps))
	for i, st := range rec.Steps {
		steps[i] = stepSummaryDocument{
			StepIndex:  st.StepIndex,
			SessionID:  st.SessionID,
			ToolNames:  st.ToolNames,
			Success:    st.Success,
			DurationMs: st.DurationMs,
		}
	}
	return consolidatedDocument{
		ConsolidatedSessionID: rec.ConsolidatedSessionID,
		ExecutionID:           rec.ExecutionID,
		Steps:                 steps,
		Metadata: consolidationMetaDocument{
			AvgScore:            rec.Metadata.AvgScore,
			TotalTools:          rec.Metadata.TotalTools,
			SuccessRate:         rec.Metadata.SuccessRate,
			ExecutionDurationMs: rec.Metadata.ExecutionDurationMs,
			SessionCount:        rec.Metadata.SessionCount,
		},
		CreatedAt: bson.NewDateTimeFromTime(rec.CreatedAt),
	}
}

func fromConsolidatedDocument(doc consolidatedDocument) consolidator.ConsolidatedSession {
	steps := make([]consolidator.StepSummary, len(doc.Steps))
	for i, st := range doc.Steps {
		steps[i] = consolidator.StepSummary{
			StepIndex:  st.StepIndex,
			SessionID:  st.SessionID,
			ToolNames:  st.ToolNames,
			Success:    st.Success,
			DurationMs: st.DurationMs,
		}
	}
	return consolidator.ConsolidatedSession{
		ConsolidatedSessionID: doc.ConsolidatedSessionID,
		ExecutionID:           doc.ExecutionID,
		Steps:                 steps,
		Metadata: consolidator.Metadata{
			AvgScore:            doc.Metadata.AvgScore,
			TotalTools:          doc.Metadata.TotalTools,
			SuccessRate:         doc.Metadata.SuccessRate,
			ExecutionDurationMs: doc.Metadata.ExecutionDurationMs,
			SessionCount:        doc.Metadata.SessionCount,
		},
		CreatedAt: doc.CreatedAt.AsTime(),
	}
}
