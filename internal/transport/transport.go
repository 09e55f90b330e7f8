// Package transport executes workflows against the engine over one of two
// variants: Local spawns the batch executor as a subprocess, Remote submits
// a job to a server and polls it. Both satisfy Transport and are selected
// once at handle construction.
package transport

import (
	"context"
	"time"

	"yqhp/knime-bridge/pkg/types"
)

// Transport runs one workflow execution. Implementations block until the
// execution reaches a terminal state or the supplied context/timeout
// expires; they never queue.
type Transport interface {
	// Execute runs the workflow identified by ref with the given wire-format
	// inputs, one per container input slot in order. The returned result is
	// terminal and immutable.
	Execute(ctx context.Context, ref string, inputs []types.DataTable, opts Options) (*types.ExecutionResult, error)
}

// Options tunes a single execution.
type Options struct {
	// Timeout bounds the whole execution. Zero means the transport default.
	Timeout time.Duration
	// PollInterval bounds remote status polling. Zero means the default.
	PollInterval time.Duration
	// Reset asks the server to reset the workflow before executing.
	Reset bool
	// LiveOutput streams the local engine's stdout/stderr to the caller's
	// instead of capturing it.
	LiveOutput bool
	// InputNodeIDs and OutputNodeIDs carry the discovered container node IDs
	// for the local batch invocation, in slot order.
	InputNodeIDs  []int
	OutputNodeIDs []int
}

const (
	// DefaultTimeout bounds an execution when the caller supplies none.
	DefaultTimeout = 60 * time.Second
	// DefaultPollInterval is the remote status polling cadence.
	DefaultPollInterval = 500 * time.Millisecond
)

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func (o Options) pollInterval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return DefaultPollInterval
}
