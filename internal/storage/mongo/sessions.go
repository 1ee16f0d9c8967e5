package mongo

import (
	"context"
	"encoding/json"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"reev-core/internal/session"
)

// SessionStore persists sealed SessionLogs to session_logs and derives the
// aggregate record §4.7 names into agent_performance, grounded on the
// teacher's session store pattern of one authoritative collection plus one
// searchable aggregate collection (features/run/mongo/search).
type SessionStore struct {
	logs        collection
	performance collection
}

// NewSessionStore builds a SessionStore over client's session_logs and
// agent_performance collections.
func NewSessionStore(client *Client) *SessionStore {
	return &SessionStore{logs: client.SessionLogs, performance: client.AgentPerformance}
}

type sessionLogDocument struct {
	SessionID   string        `bson:"session_id"`
	ExecutionID string        `bson:"execution_id"`
	BenchmarkID string        `bson:"benchmark_id"`
	AgentType   string        `bson:"agent_type"`
	StartTime   bson.DateTime `bson:"start_time"`
	EndTime     *bson.DateTime `bson:"end_time,omitempty"`
	EventsJSON  string        `bson:"events_json"`
	FinalResult *finalResultDocument `bson:"final_result,omitempty"`
}

type finalResultDocument struct {
	Success     bool               `bson:"success"`
	Score       float64            `bson:"score"`
	TotalTimeMs int64              `bson:"total_time_ms"`
	Status      string             `bson:"status"`
	Statistics  map[string]float64 `bson:"statistics,omitempty"`
}

type agentPerformanceDocument struct {
	BenchmarkID      string  `bson:"benchmark_id"`
	AgentType        string  `bson:"agent_type"`
	SessionID        string  `bson:"session_id"`
	Score            float64 `bson:"score"`
	FinalStatus      string  `bson:"final_status"`
	DurationMs       int64   `bson:"duration_ms"`
	PromptFingerprint string `bson:"prompt_fingerprint,omitempty"`
}

// WriteSealed persists a sealed Log: the raw session (§6 "Session log") and
// the linked agent_performance aggregate (benchmark_id, agent_type, score,
// final_status, duration, linked session id, prompt fingerprint — §4.7).
// It is an error to call WriteSealed on a Log that has not been sealed,
// since an in-flight session must never become visible to readers before
// its end_time is set (§5 cancellation guarantee).
func (s *SessionStore) WriteSealed(ctx context.Context, log *session.Log, executionID, promptFingerprint string) error {
	if !log.Sealed() {
		return errors.New("cannot persist an unsealed session log")
	}
	eventsJSON, err := json.Marshal(log.Events)
	if err != nil {
		return err
	}

	doc := sessionLogDocument{
		SessionID:   log.SessionID,
		ExecutionID: executionID,
		BenchmarkID: log.BenchmarkID,
		AgentType:   log.AgentType,
		StartTime:   bson.NewDateTimeFromTime(log.StartTime),
		EventsJSON:  string(eventsJSON),
	}
	if log.EndTime != nil {
		end := bson.NewDateTimeFromTime(*log.EndTime)
		doc.EndTime = &end
	}
	var perf agentPerformanceDocument
	if fr := log.FinalResult; fr != nil {
		doc.FinalResult = &finalResultDocument{
			Success:     fr.Success,
			Score:       fr.Score,
			TotalTimeMs: fr.TotalTimeMs,
			Status:      string(fr.Status),
			Statistics:  fr.Statistics,
		}
		perf = agentPerformanceDocument{
			BenchmarkID:       log.BenchmarkID,
			AgentType:         log.AgentType,
			SessionID:         log.SessionID,
			Score:             fr.Score,
			FinalStatus:       string(fr.Status),
			DurationMs:        fr.TotalTimeMs,
			PromptFingerprint: promptFingerprint,
		}
	}

	if err := s.logs.InsertOne(ctx, doc); err != nil {
		return err
	}
	if log.FinalResult != nil {
		if err := s.performance.InsertOne(ctx, perf); err != nil {
			return err
		}
	}
	return nil
}

// ReadSealed loads a previously persisted session by session_id.
func (s *SessionStore) ReadSealed(ctx context.Context, sessionID string) (*session.Log, error) {
	var doc sessionLogDocument
	if err := s.logs.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	var events []session.Event
	if err := json.Unmarshal([]byte(doc.EventsJSON), &events); err != nil {
		return nil, err
	}
	log := session.NewLog(doc.SessionID, doc.BenchmarkID, doc.AgentType, doc.StartTime.Time())
	for _, ev := range events {
		_ = log.Append(ev, ev.Timestamp)
	}
	if doc.FinalResult != nil && doc.EndTime != nil {
		_ = log.Seal(doc.EndTime.Time(), session.FinalResult{
			Success:     doc.FinalResult.Success,
			Score:       doc.FinalResult.Score,
			TotalTimeMs: doc.FinalResult.TotalTimeMs,
			Status:      session.FinalStatus(doc.FinalResult.Status),
			Statistics:  doc.FinalResult.Statistics,
		})
	}
	return log, nil
}

// SessionsForExecution returns every step session recorded under exactly
// the given execution_id, ordered by start_time (§4.7 "Scope the eligible
// step sessions by execution_id"). consolidator.Consolidate takes its steps
// from its caller and does not call this method.
func (s *SessionStore) SessionsForExecution(ctx context.Context, executionID string) ([]*session.Log, error) {
	cur, err := s.logs.Find(ctx, bson.M{"execution_id": executionID},
		options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*session.Log
	for cur.Next(ctx) {
		var doc sessionLogDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		log, err := s.ReadSealed(ctx, doc.SessionID)
		if err != nil {
			return nil, err
		}
		if log != nil {
			out = append(out, log)
		}
	}
	return out, cur.Err()
}
