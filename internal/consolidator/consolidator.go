// Package consolidator implements C7's consolidation half: merging the
// per-step SessionLogs that share an execution_id into exactly one
// ConsolidatedSession, and reporting the observable consolidation status
// machine (§4.7), grounded on
// original_source/crates/reev-api/src/handlers/consolidation/mod.rs
// (get_consolidated_session, get_execution_consolidated_session,
// get_consolidation_status) and retargeted from that HTTP-handler shape
// onto a plain Go API the (out-of-scope) viewer could sit in front of.
package consolidator

import (
	"context"
	"time"

	"reev-core/internal/reeverr"
	"reev-core/internal/session"
)

// ConsolidationStatus is the closed status set of the §4.7 lifecycle.
type ConsolidationStatus string

const (
	StatusPending    ConsolidationStatus = "pending"
	StatusInProgress ConsolidationStatus = "in_progress"
	StatusCompleted  ConsolidationStatus = "completed"
	StatusFailed     ConsolidationStatus = "failed"
	StatusTimeout    ConsolidationStatus = "timeout"
)

// DefaultTimeout is the bounded interval (§4.7) after which step sessions
// present without a consolidated record flip from in_progress to timeout.
const DefaultTimeout = 60 * time.Second

// StepSession pairs a sealed per-step Log with its position in the flow, so
// the consolidator can order steps without the session package needing to
// know about flow indices (§9 decoupling).
type StepSession struct {
	StepIndex int
	Log       *session.Log
}

// StepSummary is one entry in a ConsolidatedSession's ordered steps array
// (§6 "Consolidated record").
type StepSummary struct {
	StepIndex  int      `json:"step_index"`
	SessionID  string   `json:"session_id"`
	ToolNames  []string `json:"tool_names"`
	Success    bool     `json:"success"`
	DurationMs int64    `json:"duration_ms"`
}

// Metadata is the aggregate block of a ConsolidatedSession (§4.7, §6).
type Metadata struct {
	AvgScore            float64 `json:"avg_score"`
	TotalTools          int     `json:"total_tools"`
	SuccessRate         float64 `json:"success_rate"`
	ExecutionDurationMs int64   `json:"execution_duration_ms"`
	SessionCount        int     `json:"session_count"`
}

// ConsolidatedSession is the single merged document produced for an
// execution_id (§4.7, §6 "Consolidated record").
type ConsolidatedSession struct {
	ConsolidatedSessionID string        `json:"consolidated_session_id"`
	ExecutionID           string        `json:"execution_id"`
	Steps                 []StepSummary `json:"steps"`
	Metadata              Metadata      `json:"metadata"`
	CreatedAt             time.Time     `json:"created_at"`
}

// Store is the narrow persistence surface the consolidator needs, grounded
// on goa-ai's features/session/mongo.Store delegation pattern: a thin
// interface in front of the storage package so consolidator never imports
// the mongo driver directly.
type Store interface {
	// GetConsolidated returns the existing record for executionID, or
	// (nil, nil) if none exists yet.
	GetConsolidated(ctx context.Context, executionID string) (*ConsolidatedSession, error)
	// PutConsolidated stores rec if and only if no record exists yet for
	// rec.ExecutionID (the unique-index-backed at-most-once write, §5, §8
	// invariant 2). It returns the record that is authoritative after the
	// call: rec itself on a fresh insert, or the pre-existing record when a
	// concurrent writer won the race.
	PutConsolidated(ctx context.Context, rec ConsolidatedSession) (ConsolidatedSession, error)
}

// Consolidator implements the §4.7 consolidation algorithm and status
// machine.
type Consolidator struct {
	store Store
	newID func() string
	now   func() time.Time
}

// New returns a Consolidator persisting through store. newID generates
// ConsolidatedSessionIDs (callers should pass uuid.NewString; a nil newID
// leaves ConsolidatedSessionID empty). now defaults to time.Now.
func New(store Store, newID func() string, now func() time.Time) *Consolidator {
	if now == nil {
		now = time.Now
	}
	return &Consolidator{store: store, newID: newID, now: now}
}

// Consolidate merges steps into exactly one ConsolidatedSession for
// executionID (§4.7). It is idempotent: a prior winning record for the same
// executionID is returned unchanged rather than overwritten (§5 ordering
// guarantee, §8 invariant 2). Every step's Log must be sealed; Consolidate
// returns a Storage/IntegrityViolation error otherwise, since an
// unsealed step is not yet eligible for consolidation (§4.7 scoping rule).
func (c *Consolidator) Consolidate(ctx context.Context, executionID string, steps []StepSession) (ConsolidatedSession, error) {
	if existing, err := c.store.GetConsolidated(ctx, executionID); err != nil {
		return ConsolidatedSession{}, err
	} else if existing != nil {
		return *existing, nil
	}

	ordered := orderedSteps(steps)
	summaries := make([]StepSummary, 0, len(ordered))
	var (
		scoreSum     float64
		scoreCount   int
		successCount int
		totalTools   int
		durationSum  int64
	)
	for _, st := range ordered {
		if !st.Log.Sealed() {
			return ConsolidatedSession{}, reeverr.Errorf(reeverr.KindStorage, reeverr.TagIntegrityViolation,
				"step %d session %s is not sealed; not eligible for consolidation", st.StepIndex, st.Log.SessionID)
		}
		summaries = append(summaries, summarizeStep(st))
		totalTools += countToolCalls(st.Log)
		durationSum += stepDurationMs(st.Log)
		if fr := st.Log.FinalResult; fr != nil {
			scoreSum += fr.Score
			scoreCount++
			if fr.Success {
				successCount++
			}
		}
	}

	meta := Metadata{
		TotalTools:          totalTools,
		ExecutionDurationMs: durationSum,
		SessionCount:        len(ordered),
	}
	if scoreCount > 0 {
		meta.AvgScore = scoreSum / float64(scoreCount)
	}
	if len(ordered) > 0 {
		meta.SuccessRate = 100.0 * float64(successCount) / float64(len(ordered))
	}

	id := ""
	if c.newID != nil {
		id = c.newID()
	}
	rec := ConsolidatedSession{
		ConsolidatedSessionID: id,
		ExecutionID:           executionID,
		Steps:                 summaries,
		Metadata:              meta,
		CreatedAt:             c.now(),
	}

	return c.store.PutConsolidated(ctx, rec)
}

// StatusReport is the response shape of the §4.7 status machine, mirrored
// from ConsolidationStatusResponse in the grounding handler.
type StatusReport struct {
	ExecutionID           string
	Complete              bool
	ConsolidatedSessionID string
	Status                ConsolidationStatus
	Message               string
	UpdatedAt             time.Time
	Metadata              *Metadata
}

// Status reports the current consolidation lifecycle state for executionID
// (§4.7): pending -> in_progress -> completed | failed/timeout.
func (c *Consolidator) Status(ctx context.Context, executionID string, steps []StepSession) (StatusReport, error) {
	now := c.now()

	existing, err := c.store.GetConsolidated(ctx, executionID)
	if err != nil {
		return StatusReport{}, err
	}
	if existing != nil {
		meta := existing.Metadata
		return StatusReport{
			ExecutionID:           executionID,
			Complete:              true,
			ConsolidatedSessionID: existing.ConsolidatedSessionID,
			Status:                StatusCompleted,
			Message:               "Consolidation completed successfully",
			UpdatedAt:             now,
			Metadata:              &meta,
		}, nil
	}

	if len(steps) == 0 {
		return StatusReport{
			ExecutionID: executionID,
			Status:      StatusPending,
			Message:     "No step sessions found for consolidation",
			UpdatedAt:   now,
		}, nil
	}

	allSealed := true
	var earliest time.Time
	for _, st := range steps {
		if !st.Log.Sealed() {
			allSealed = false
		}
		if earliest.IsZero() || st.Log.StartTime.Before(earliest) {
			earliest = st.Log.StartTime
		}
	}

	if allSealed && !earliest.IsZero() && now.Sub(earliest) > DefaultTimeout {
		return StatusReport{
			ExecutionID: executionID,
			Status:      StatusTimeout,
			Message:     "Consolidation did not complete within the timeout window",
			UpdatedAt:   now,
		}, nil
	}

	return StatusReport{
		ExecutionID: executionID,
		Status:      StatusInProgress,
		Message:     "Consolidation in progress (60s timeout)",
		UpdatedAt:   now,
	}, nil
}

func orderedSteps(steps []StepSession) []StepSession {
	ordered := make([]StepSession, len(steps))
	copy(ordered, steps)
	for i := 1; i < len(ordered); i++ {
		j := i
		for j > 0 && ordered[j-1].StepIndex > ordered[j].StepIndex {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
			j--
		}
	}
	return ordered
}

func summarizeStep(st StepSession) StepSummary {
	summary := StepSummary{StepIndex: st.StepIndex, SessionID: st.Log.SessionID}
	if fr := st.Log.FinalResult; fr != nil {
		summary.Success = fr.Success
		summary.DurationMs = fr.TotalTimeMs
	}
	seen := map[string]bool{}
	for _, ev := range st.Log.Events {
		if ev.Kind == session.EventToolCall && ev.ToolCall != nil && !seen[ev.ToolCall.ToolName] {
			seen[ev.ToolCall.ToolName] = true
			summary.ToolNames = append(summary.ToolNames, ev.ToolCall.ToolName)
		}
	}
	return summary
}

func countToolCalls(log *session.Log) int {
	n := 0
	for _, ev := range log.Events {
		if ev.Kind == session.EventToolResult && ev.ToolResult != nil && ev.ToolResult.Status == session.ToolResultSuccess {
			n++
		}
	}
	return n
}

func stepDurationMs(log *session.Log) int64 {
	if log.EndTime == nil {
		return 0
	}
	return log.EndTime.Sub(log.StartTime).Milliseconds()
}
