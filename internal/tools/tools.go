// Package tools implements C3, the Tool Registry & Balance Validator: the
// closed set of eight named tools exposed to the Agent Driver, each with a
// schema, a validator, and a handler. Grounded on the teacher's
// runtime/agent/tools.ToolSpec/FieldIssue shape, adapted from Goa-generated
// multi-service tool metadata to a fixed, hand-written registry — a generic
// JSON-schema engine (santhosh-tekuri/jsonschema/v6) is deliberately not
// wired here; see DESIGN.md for the justification.
package tools

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"reev-core/internal/flow"
	"reev-core/internal/keymap"
	"reev-core/internal/reeverr"
)

// FieldIssue is a single validation issue for a tool's arguments, following
// the teacher's tools.FieldIssue shape.
type FieldIssue struct {
	Field      string
	Constraint string
}

// ValidationError aggregates one or more FieldIssues raised while
// validating a tool call's arguments.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	msg := ""
	for i, issue := range e.Issues {
		if i > 0 {
			msg += "; "
		}
		msg += issue.Field + ": " + issue.Constraint
	}
	return msg
}

// Args is a tool call's decoded argument map.
type Args map[string]any

// String returns args[key] as a string, or "" if absent or not a string.
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Uint64 returns args[key] as a uint64. JSON numbers decode to float64, so
// this accepts both float64 and an already-typed uint64/int.
func (a Args) Uint64(key string) (uint64, bool) {
	switch v := a[key].(type) {
	case uint64:
		return v, true
	case int:
		return uint64(v), true
	case float64:
		return uint64(v), true
	default:
		return 0, false
	}
}

// HandlerResult is the tool handler's return value (§4.3): the built
// instructions, the submitted transaction signature, and bookkeeping
// fields. A handler that returns without a signature is a protocol
// violation (§4.3); Registry.Invoke enforces this.
type HandlerResult struct {
	Instructions         []solana.Instruction
	TransactionSignature string
	OperationType        string
	Completed            bool
}

// Submitter builds, signs, submits, and confirms a transaction for payer
// carrying instructions, returning the confirmed signature. Implemented by
// the C5 Transaction Executor; tool handlers depend only on this narrow
// interface so C3 never needs to import C5.
type Submitter interface {
	Submit(ctx context.Context, payer solana.PublicKey, instructions []solana.Instruction) (signature string, err error)
}

// Handler builds instructions for a validated tool call and submits them
// via submitter.
type Handler func(ctx context.Context, km *keymap.KeyMap, args Args, balances BalanceValidator, submitter Submitter) (HandlerResult, error)

// Validator checks a tool call's arguments against the KeyMap (placeholder
// resolution) and the tool's own constraints, returning a *ValidationError
// (wrapped in a reeverr.Error) on failure.
type Validator func(km *keymap.KeyMap, args Args) error

// Spec is the per-tool contract: schema metadata plus validator and
// handler (§4.3).
type Spec struct {
	Name        flow.ToolName
	Description string
	Required    []string
	Validate    Validator
	Handle      Handler
}

// Registry is the closed set of named tools (§4.3). Per §9's concurrency
// reshape, a Registry is built once and never mutated concurrently with
// Invoke calls — it is owned per-execution, not shared across executions.
type Registry struct {
	specs map[flow.ToolName]Spec
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[flow.ToolName]Spec)}
}

// Register adds spec to the registry, keyed by spec.Name.
func (r *Registry) Register(spec Spec) {
	r.specs[spec.Name] = spec
}

// Get returns the Spec registered for name.
func (r *Registry) Get(name flow.ToolName) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []flow.ToolName {
	out := make([]flow.ToolName, 0, len(r.specs))
	for n := range r.specs {
		out = append(out, n)
	}
	return out
}

// Invoke validates args against the named tool's Spec, then runs its
// Handler. A closed-set violation (unknown tool name) and a handler
// returning no signature are both protocol violations per §4.3.
func (r *Registry) Invoke(ctx context.Context, name flow.ToolName, km *keymap.KeyMap, args Args, balances BalanceValidator, submitter Submitter) (HandlerResult, error) {
	spec, ok := r.specs[name]
	if !ok {
		return HandlerResult{}, reeverr.Errorf(reeverr.KindValidation, reeverr.TagInvalidPubkey, "unknown tool %q", name)
	}
	if spec.Validate != nil {
		if err := spec.Validate(km, args); err != nil {
			return HandlerResult{}, err
		}
	}
	result, err := spec.Handle(ctx, km, args, balances, submitter)
	if err != nil {
		return HandlerResult{}, err
	}
	if result.TransactionSignature == "" {
		return HandlerResult{}, reeverr.New(reeverr.KindExecution, reeverr.TagTxBuildFailure,
			"tool handler returned without a transaction signature, a protocol violation (§4.3)")
	}
	return result, nil
}
