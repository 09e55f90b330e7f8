package types

import "time"

// ExecutionStatus is the outcome of one execution attempt.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionResult is the terminal result of one transport invocation. It is
// never mutated after creation.
type ExecutionResult struct {
	Status ExecutionStatus
	// Outputs holds one decoded table per container output node, in slot
	// order. Empty when the workflow declares no outputs.
	Outputs []DataTable
	// Diagnostic carries the engine's own output: captured stderr for local
	// executions, the server message for remote jobs.
	Diagnostic string
	// JobID identifies the remote job, when one was created.
	JobID    string
	Duration time.Duration
}
