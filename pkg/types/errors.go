package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies bridge errors. The codes form the complete taxonomy;
// every error surfaced to a caller carries exactly one of them.
type ErrorCode string

const (
	// CodeExecutableNotFound indicates no usable engine executable was resolved.
	CodeExecutableNotFound ErrorCode = "EXECUTABLE_NOT_FOUND"
	// CodeMissingCredentials indicates incomplete server credentials.
	CodeMissingCredentials ErrorCode = "MISSING_CREDENTIALS"
	// CodeNoTransportConfigured indicates neither local nor remote execution is configured.
	CodeNoTransportConfigured ErrorCode = "NO_TRANSPORT_CONFIGURED"
	// CodeAlreadyExecuting indicates a second Execute while one is in flight.
	CodeAlreadyExecuting ErrorCode = "ALREADY_EXECUTING"
	// CodeUnsupportedColumnType indicates a column type outside the wire enumeration.
	CodeUnsupportedColumnType ErrorCode = "UNSUPPORTED_COLUMN_TYPE"
	// CodeSchemaMismatch indicates table data inconsistent with its spec.
	CodeSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"
	// CodeExecutionFailed indicates the engine reported a failed execution.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"
	// CodeExecutionTimeout indicates the caller-supplied deadline elapsed.
	CodeExecutionTimeout ErrorCode = "EXECUTION_TIMEOUT"
	// CodeAuthentication indicates the server rejected the credentials.
	CodeAuthentication ErrorCode = "AUTHENTICATION"
	// CodeWorkflowNotFound indicates the server knows no such workflow.
	CodeWorkflowNotFound ErrorCode = "WORKFLOW_NOT_FOUND"
	// CodeTransport indicates an exhausted retry budget on transient failures.
	CodeTransport ErrorCode = "TRANSPORT"
	// CodeWorkflowNotExecuted indicates an output read before a completed execution.
	CodeWorkflowNotExecuted ErrorCode = "WORKFLOW_NOT_EXECUTED"
)

// Error is the coded error used across the bridge. Diagnostic preserves the
// raw payload from the engine side (process stderr, server error body) for
// caller inspection.
type Error struct {
	Code       ErrorCode
	Message    string
	Diagnostic string
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a coded error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NewDiagnosticError creates a coded error carrying engine diagnostics.
func NewDiagnosticError(code ErrorCode, message, diagnostic string, cause error) *Error {
	return &Error{Code: code, Message: message, Diagnostic: diagnostic, Cause: cause}
}

// CodeOf extracts the error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode checks whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsSchemaMismatch checks if the error is a schema mismatch.
func IsSchemaMismatch(err error) bool { return IsCode(err, CodeSchemaMismatch) }

// IsExecutionTimeout checks if the error is an execution timeout.
func IsExecutionTimeout(err error) bool { return IsCode(err, CodeExecutionTimeout) }

// IsExecutionFailed checks if the error is a failed execution.
func IsExecutionFailed(err error) bool { return IsCode(err, CodeExecutionFailed) }
