package session

import (
	"fmt"
	"sync"
	"time"

	"reev-core/internal/reeverr"
)

// FinalStatus is the closed terminal-status set recorded in final_result
// (§6).
type FinalStatus string

const (
	StatusSucceeded FinalStatus = "Succeeded"
	StatusFailed    FinalStatus = "Failed"
)

// FinalResult summarizes a sealed Log (§3, §6).
type FinalResult struct {
	Success       bool
	Score         float64
	TotalTimeMs   int64
	Status        FinalStatus
	Statistics    map[string]float64
}

// Log is the per-step SessionLog (§3). It is created at step start,
// appended to throughout, and sealed on step completion. Ownership: the
// driver exclusively owns it until sealed; thereafter the writer owns it
// read-only (§9).
//
// Log is safe for concurrent Append calls within the driver's own
// goroutine boundaries (§5: a step is single-threaded cooperative, so this
// is belt-and-suspenders rather than load-bearing), but Seal must be called
// exactly once and no Append may follow it.
type Log struct {
	mu sync.Mutex

	SessionID    string
	BenchmarkID  string
	AgentType    string
	StartTime    time.Time
	EndTime      *time.Time
	Events       []Event
	FinalResult  *FinalResult

	sealed bool
}

// NewLog creates an open Log for sessionID starting now.
func NewLog(sessionID, benchmarkID, agentType string, now time.Time) *Log {
	return &Log{
		SessionID:   sessionID,
		BenchmarkID: benchmarkID,
		AgentType:   agentType,
		StartTime:   now,
	}
}

// Append adds ev to the log, stamping Timestamp from now if the caller left
// it zero. Returns a Storage error if the log is already sealed.
func (l *Log) Append(ev Event, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return reeverr.New(reeverr.KindStorage, reeverr.TagIntegrityViolation, "cannot append to a sealed session log")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	if len(l.Events) > 0 {
		last := l.Events[len(l.Events)-1].Timestamp
		if ev.Timestamp.Before(last) {
			ev.Timestamp = last // enforce monotonic non-decreasing timestamps (§5, §8 invariant 1)
		}
	}
	l.Events = append(l.Events, ev)
	return nil
}

// Seal stamps EndTime and FinalResult and marks the log immutable. Sealing
// is atomic: the log becomes visible to the writer only once EndTime is set
// (§5 cancellation guarantee).
func (l *Log) Seal(now time.Time, result FinalResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return reeverr.New(reeverr.KindStorage, reeverr.TagIntegrityViolation, "session log already sealed")
	}
	if now.Before(l.StartTime) {
		return reeverr.Errorf(reeverr.KindStorage, reeverr.TagIntegrityViolation,
			"end_time %s precedes start_time %s", now, l.StartTime)
	}
	l.EndTime = &now
	l.FinalResult = &result
	l.sealed = true
	return nil
}

// Sealed reports whether Seal has been called.
func (l *Log) Sealed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealed
}

// Validate checks universal invariant 1 (§8): timestamps non-decreasing and
// end_time >= start_time.
func (l *Log) Validate() error {
	prev := l.StartTime
	for i, ev := range l.Events {
		if ev.Timestamp.Before(prev) {
			return reeverr.Errorf(reeverr.KindStorage, reeverr.TagIntegrityViolation,
				"event %d timestamp %s precedes prior timestamp %s", i, ev.Timestamp, prev)
		}
		prev = ev.Timestamp
	}
	if l.EndTime != nil && l.EndTime.Before(l.StartTime) {
		return fmt.Errorf("end_time %s precedes start_time %s", *l.EndTime, l.StartTime)
	}
	return nil
}

// HasSuccessfulToolCall reports whether a ToolResult event for toolName
// with ToolResultSuccess exists (used by C4 termination and C6 tool-call
// scoring, §4.4, §4.6).
func (l *Log) HasSuccessfulToolCall(toolName string) bool {
	for _, ev := range l.Events {
		if ev.Kind == EventToolResult && ev.ToolResult != nil &&
			ev.ToolResult.ToolName == toolName && ev.ToolResult.Status == ToolResultSuccess {
			return true
		}
	}
	return false
}

// LlmRequestCount returns the number of LlmRequest events recorded, used to
// verify the "three separate LLM request events" boundary behavior (§8).
func (l *Log) LlmRequestCount() int {
	n := 0
	for _, ev := range l.Events {
		if ev.Kind == EventLlmRequest {
			n++
		}
	}
	return n
}

// TransactionSignatures returns every non-empty signature recorded by
// TransactionExecution events, in order.
func (l *Log) TransactionSignatures() []string {
	var sigs []string
	for _, ev := range l.Events {
		if ev.Kind == EventTransactionExecution && ev.TransactionExecution != nil && ev.TransactionExecution.Signature != "" {
			sigs = append(sigs, ev.TransactionExecution.Signature)
		}
	}
	return sigs
}
