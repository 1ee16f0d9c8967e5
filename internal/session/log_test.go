package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLog_AppendEnforcesMonotonicTimestamps(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log := NewLog("sess-1", "bench-1", "claude-sonnet", now)

	require.NoError(t, log.Append(Event{Kind: EventLlmRequest, Timestamp: now}, now))
	earlier := now.Add(-time.Second)
	require.NoError(t, log.Append(Event{Kind: EventLlmRequest, Timestamp: earlier}, earlier))

	require.NoError(t, log.Validate())
	require.False(t, log.Events[1].Timestamp.Before(log.Events[0].Timestamp))
}

func TestLog_SealIsAtomicAndSingleUse(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log := NewLog("sess-1", "bench-1", "claude-sonnet", now)
	end := now.Add(time.Second)

	require.NoError(t, log.Seal(end, FinalResult{Success: true, Score: 1.0, Status: StatusSucceeded}))
	require.True(t, log.Sealed())

	err := log.Seal(end, FinalResult{Success: true, Score: 1.0, Status: StatusSucceeded})
	require.Error(t, err)

	err = log.Append(Event{Kind: EventLlmRequest}, end)
	require.Error(t, err)
}

func TestLog_JSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log := NewLog("sess-1", "bench-1", "claude-sonnet", now)
	require.NoError(t, log.Append(Event{
		Kind:      EventToolCall,
		Timestamp: now,
		ToolCall:  &ToolCallPayload{ToolName: "sol_transfer", ArgsJSON: `{"amount":1}`, StartedAt: now},
	}, now))
	end := now.Add(2 * time.Second)
	require.NoError(t, log.Seal(end, FinalResult{
		Success:     true,
		Score:       1.0,
		TotalTimeMs: 2000,
		Status:      StatusSucceeded,
		Statistics:  map[string]float64{"steps": 1},
	}))

	data, err := json.Marshal(log)
	require.NoError(t, err)

	var roundTripped Log
	require.NoError(t, json.Unmarshal(data, &roundTripped))

	require.Equal(t, log.SessionID, roundTripped.SessionID)
	require.Equal(t, log.BenchmarkID, roundTripped.BenchmarkID)
	require.Equal(t, log.StartTime.Unix(), roundTripped.StartTime.Unix())
	require.NotNil(t, roundTripped.EndTime)
	require.Equal(t, log.EndTime.Unix(), roundTripped.EndTime.Unix())
	require.Len(t, roundTripped.Events, 1)
	require.Equal(t, "sol_transfer", roundTripped.Events[0].ToolCall.ToolName)
	require.NotNil(t, roundTripped.FinalResult)
	require.Equal(t, log.FinalResult.Score, roundTripped.FinalResult.Score)
	require.Equal(t, log.FinalResult.Statistics, roundTripped.FinalResult.Statistics)
}

func TestLog_HasSuccessfulToolCall(t *testing.T) {
	now := time.Now()
	log := NewLog("sess-1", "bench-1", "claude-sonnet", now)
	require.NoError(t, log.Append(Event{
		Kind:       EventToolResult,
		Timestamp:  now,
		ToolResult: &ToolResultPayload{ToolName: "sol_transfer", Status: ToolResultError},
	}, now))
	require.False(t, log.HasSuccessfulToolCall("sol_transfer"))

	require.NoError(t, log.Append(Event{
		Kind:       EventToolResult,
		Timestamp:  now,
		ToolResult: &ToolResultPayload{ToolName: "sol_transfer", Status: ToolResultSuccess},
	}, now))
	require.True(t, log.HasSuccessfulToolCall("sol_transfer"))
}
