package types

import "encoding/json"

// JobStatus is the state of a server-side workflow job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	}
	return false
}

// CreateJobRequest is the job-creation payload. Inputs are wire-format
// tables, one per container input node, in slot order.
type CreateJobRequest struct {
	Workflow string            `json:"workflow"`
	Reset    bool              `json:"reset,omitempty"`
	Inputs   []json.RawMessage `json:"inputs,omitempty"`
}

// CreateJobResponse is returned by the job-creation endpoint.
type CreateJobResponse struct {
	JobID string `json:"job-id"`
}

// JobStatusResponse is returned by the status endpoint. Message carries the
// server-reported error text for failed jobs.
type JobStatusResponse struct {
	JobID   string    `json:"job-id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

// JobResultsResponse is returned by the result endpoint once a job has
// succeeded. Outputs are wire-format tables in container output node order.
type JobResultsResponse struct {
	JobID   string            `json:"job-id"`
	Outputs []json.RawMessage `json:"outputs"`
}

// ErrorResponse is the server's error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
