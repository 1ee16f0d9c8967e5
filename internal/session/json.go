package session

import (
	"encoding/json"
	"time"
)

// wireFinalResult mirrors §6's final_result JSON shape, which nests
// execution_time_ms and status/data differently from the in-process
// FinalResult struct.
type wireFinalResult struct {
	Success         bool               `json:"success"`
	Score           float64            `json:"score"`
	ExecutionTimeMs int64              `json:"execution_time_ms"`
	Status          FinalStatus        `json:"status"`
	Data            wireFinalResultData `json:"data"`
}

type wireFinalResultData struct {
	Statistics map[string]float64 `json:"statistics,omitempty"`
}

type wireLog struct {
	SessionID   string            `json:"session_id"`
	BenchmarkID string            `json:"benchmark_id"`
	AgentType   string            `json:"agent_type"`
	StartTime   int64             `json:"start_time"`
	EndTime     *int64            `json:"end_time,omitempty"`
	Events      []Event           `json:"events"`
	FinalResult *wireFinalResult  `json:"final_result,omitempty"`
}

// MarshalJSON renders the persisted-JSON shape from §6: start_time/end_time
// as Unix seconds, final_result nested under data.statistics.
func (l *Log) MarshalJSON() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := wireLog{
		SessionID:   l.SessionID,
		BenchmarkID: l.BenchmarkID,
		AgentType:   l.AgentType,
		StartTime:   l.StartTime.Unix(),
		Events:      l.Events,
	}
	if l.EndTime != nil {
		t := l.EndTime.Unix()
		w.EndTime = &t
	}
	if l.FinalResult != nil {
		w.FinalResult = &wireFinalResult{
			Success:         l.FinalResult.Success,
			Score:           l.FinalResult.Score,
			ExecutionTimeMs: l.FinalResult.TotalTimeMs,
			Status:          l.FinalResult.Status,
			Data:            wireFinalResultData{Statistics: l.FinalResult.Statistics},
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the persisted-JSON shape from §6 back into a Log.
// Round-tripping a Log through MarshalJSON/UnmarshalJSON yields an
// equivalent record (§8 "Session serialization is loss-free").
func (l *Log) UnmarshalJSON(data []byte) error {
	var w wireLog
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.SessionID = w.SessionID
	l.BenchmarkID = w.BenchmarkID
	l.AgentType = w.AgentType
	l.StartTime = time.Unix(w.StartTime, 0).UTC()
	l.Events = w.Events
	l.EndTime = nil
	l.FinalResult = nil
	l.sealed = false
	if w.EndTime != nil {
		t := time.Unix(*w.EndTime, 0).UTC()
		l.EndTime = &t
		l.sealed = true
	}
	if w.FinalResult != nil {
		l.FinalResult = &FinalResult{
			Success:     w.FinalResult.Success,
			Score:       w.FinalResult.Score,
			TotalTimeMs: w.FinalResult.ExecutionTimeMs,
			Status:      w.FinalResult.Status,
			Statistics:  w.FinalResult.Data.Statistics,
		}
	}
	return nil
}
