// Package reeverr defines the error taxonomy shared by every component of
// the evaluation pipeline. Errors carry a stable Kind so callers can branch
// on failure category with errors.As instead of string matching.
package reeverr

import "fmt"

// Kind identifies the broad error category from the error handling design.
type Kind string

const (
	// KindConfiguration covers missing env vars, invalid benchmark YAML, and
	// unresolved required placeholders.
	KindConfiguration Kind = "configuration"
	// KindContext covers RPC unreachability, account parse failures, and
	// mandatory balances that could not be resolved.
	KindContext Kind = "context"
	// KindValidation covers malformed tool arguments: bad pubkeys, non-positive
	// amounts, identical input/output mints, out-of-range slippage, and
	// insufficient funds.
	KindValidation Kind = "validation"
	// KindAgent covers model call failures, exhausted conversation depth, and
	// the absence of a terminal tool call.
	KindAgent Kind = "agent"
	// KindExecution covers transaction build failure, submission rejection,
	// confirmation timeout, and on-chain program errors.
	KindExecution Kind = "execution"
	// KindStorage covers duplicate detection, integrity violations, exhausted
	// connections, and retry-limit exceeded on persistence.
	KindStorage Kind = "storage"
)

// Tag is a fine-grained error code within a Kind, used for retry-tag gating
// (§4.4 retry policy: retryable_error_tags) and for session event reporting.
type Tag string

const (
	TagMissingEnv             Tag = "missing_env"
	TagInvalidBenchmark       Tag = "invalid_benchmark"
	TagMissingPlaceholder     Tag = "missing_placeholder"
	TagRPCUnreachable         Tag = "rpc_unreachable"
	TagAccountParseFailure    Tag = "account_parse_failure"
	TagMandatoryBalanceMissing Tag = "mandatory_balance_missing"
	TagInvalidPubkey          Tag = "invalid_pubkey"
	TagInvalidAmount          Tag = "invalid_amount"
	TagSameMint               Tag = "same_mint"
	TagSlippageOutOfRange     Tag = "slippage_out_of_range"
	TagInsufficientFunds      Tag = "insufficient_funds"
	TagModelCallFailure       Tag = "model_call_failure"
	TagDepthExceeded          Tag = "depth_exceeded"
	TagNoTerminalToolCall     Tag = "no_terminal_tool_call"
	TagTxBuildFailure         Tag = "tx_build_failure"
	TagSubmissionRejected     Tag = "submission_rejected"
	TagConfirmationTimeout    Tag = "confirmation_timeout"
	TagOnChainError           Tag = "on_chain_error"
	TagDuplicateDetected      Tag = "duplicate_detected"
	TagIntegrityViolation     Tag = "integrity_violation"
	TagConnectionExhausted    Tag = "connection_exhausted"
	TagRetryLimitExceeded     Tag = "retry_limit_exceeded"
	TagTimeout                Tag = "timeout"
)

// Error is the single error type used across the pipeline. It carries a Kind
// for category-level handling and a Tag for retry-policy matching, plus an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Tag     Tag
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Tag, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Tag, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with no wrapped cause.
func New(kind Kind, tag Tag, message string) *Error {
	return &Error{Kind: kind, Tag: tag, Message: message}
}

// Wrap constructs an Error wrapping cause.
func Wrap(kind Kind, tag Tag, message string, cause error) *Error {
	return &Error{Kind: kind, Tag: tag, Message: message, Cause: cause}
}

// Errorf constructs an Error with a formatted message.
func Errorf(kind Kind, tag Tag, format string, args ...any) *Error {
	return &Error{Kind: kind, Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a reeverr Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

// HasTag reports whether err is a reeverr Error carrying the given Tag.
func HasTag(err error, tag Tag) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Tag == tag
	}
	return false
}

// TagOf extracts the Tag carried by err, if err is or wraps a reeverr Error.
// Used by retry-policy gating, which needs the tag itself rather than a
// yes/no match against one candidate (§4.4 retryable_error_tags).
func TagOf(err error) (Tag, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Tag, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
