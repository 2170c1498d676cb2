// Package toolerrors provides the structured error vocabulary shared by tool
// handlers, the Executor, and the Critic. ToolError preserves error chains and
// supports errors.Is/As while carrying the {kind, message, retry_possible}
// shape the client transport expects on a failed step.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind categorizes a tool or orchestration failure. Planner/Validator/
// Executor errors all carry a Kind so the orchestrator can decide whether to
// retry, repair, or surface the failure verbatim.
type Kind string

const (
	// KindUnknown is used when no more specific kind applies.
	KindUnknown Kind = "unknown"
	// KindInvalidArguments indicates a tool rejected its resolved parameters,
	// typically a schema validation failure.
	KindInvalidArguments Kind = "invalid_arguments"
	// KindToolUnavailable indicates the named tool has no registered handler
	// or the handler could not be constructed.
	KindToolUnavailable Kind = "tool_unavailable"
	// KindTimeout indicates the tool exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindOutOfSandbox indicates a file operation resolved outside the
	// configured sandbox roots. Never retried.
	KindOutOfSandbox Kind = "out_of_sandbox"
	// KindCancelled indicates the step was short-circuited by a cancel signal.
	KindCancelled Kind = "cancelled"
	// KindInternal indicates an unexpected failure; detail is logged but not
	// surfaced verbatim to the client.
	KindInternal Kind = "internal"
)

// ToolError represents a structured tool failure that preserves message and
// causal context while still implementing the standard error interface. Tool
// errors may be nested via Cause to retain diagnostics across retries.
type ToolError struct {
	// Kind classifies the failure for retry/escalation decisions.
	Kind Kind
	// Message is the human-readable summary of the failure.
	Message string
	// RetryPossible hints that the same step may succeed if retried with the
	// same or adjusted parameters.
	RetryPossible bool
	// Cause links to the underlying tool error, enabling error chains with
	// errors.Is/As.
	Cause *ToolError
}

// New constructs a ToolError with KindUnknown and the provided message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Kind: KindUnknown, Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error. The
// cause is converted into a ToolError chain so metadata survives
// serialization while still supporting errors.Is/As through Unwrap.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{
		Kind:    KindUnknown,
		Message: message,
		Cause:   FromError(cause),
	}
}

// Classify constructs a ToolError with an explicit kind and retry hint.
func Classify(kind Kind, message string, retryPossible bool) *ToolError {
	return &ToolError{Kind: kind, Message: message, RetryPossible: retryPossible}
}

// FromError converts an arbitrary error into a ToolError chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Kind:    KindUnknown,
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns the string as a
// ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
