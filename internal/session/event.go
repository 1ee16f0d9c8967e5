// Package session defines the append-only session log owned by the Agent
// Driver during a step and handed, sealed, to the log writer (§3, §9
// "Ownership and references"). Grounded on the teacher's
// runtime/agent/runlog.Event (append-only, ordered) and
// runtime/agent/session.Session shapes, generalized from agent-run records
// to benchmark-step records.
package session

import "time"

// EventKind discriminates the SessionEvent tagged union (§3).
type EventKind string

const (
	EventLlmRequest         EventKind = "llm_request"
	EventToolCall           EventKind = "tool_call"
	EventToolResult         EventKind = "tool_result"
	EventTransactionExecution EventKind = "transaction_execution"
	EventError              EventKind = "error"
)

// ToolResultStatus is the closed status set for a ToolResult event.
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "Success"
	ToolResultError   ToolResultStatus = "Error"
	ToolResultTimeout ToolResultStatus = "Timeout"
)

// Event is a single SessionEvent (§3). Exactly one of the payload fields is
// populated, selected by Kind; this mirrors the tagged-union design used
// throughout the pipeline (§9) without requiring a dynamic-dispatch
// interface for a closed, rarely-changing set of five variants.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Depth     int       `json:"depth"`

	LlmRequest            *LlmRequestPayload            `json:"llm_request,omitempty"`
	ToolCall              *ToolCallPayload              `json:"tool_call,omitempty"`
	ToolResult            *ToolResultPayload            `json:"tool_result,omitempty"`
	TransactionExecution  *TransactionExecutionPayload  `json:"transaction_execution,omitempty"`
	Error                 *ErrorPayload                 `json:"error,omitempty"`
}

// LlmRequestPayload backs EventLlmRequest.
type LlmRequestPayload struct {
	Prompt     string `json:"prompt"`
	Model      string `json:"model"`
	TokenCount int    `json:"token_count"`
	RequestID  string `json:"request_id"`
}

// ToolCallPayload backs EventToolCall.
type ToolCallPayload struct {
	ToolName  string    `json:"tool_name"`
	ArgsJSON  string    `json:"args_json"`
	StartedAt time.Time `json:"started_at"`
}

// ToolResultPayload backs EventToolResult.
type ToolResultPayload struct {
	ToolName     string           `json:"tool_name"`
	Status       ToolResultStatus `json:"status"`
	ResultJSON   string           `json:"result_json,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	DurationMs   int64            `json:"duration_ms"`
	EndedAt      time.Time        `json:"ended_at"`
}

// TransactionExecutionPayload backs EventTransactionExecution.
type TransactionExecutionPayload struct {
	Signature        string   `json:"signature"`
	InstructionCount int      `json:"instruction_count"`
	ProgramIDs       []string `json:"program_ids,omitempty"`
	Success          bool     `json:"success"`
	Error            string   `json:"error,omitempty"`
	DurationMs       int64    `json:"duration_ms"`
}

// ErrorPayload backs EventError.
type ErrorPayload struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}
