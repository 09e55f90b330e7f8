// Package workflow provides the caller-facing handle for driving a KNIME
// workflow: stage input tables, execute over the configured transport, read
// output tables.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"yqhp/knime-bridge/internal/config"
	"yqhp/knime-bridge/internal/transport"
	"yqhp/knime-bridge/pkg/logger"
	"yqhp/knime-bridge/pkg/table"
	"yqhp/knime-bridge/pkg/types"
)

// State is the handle's execution lifecycle state.
type State string

const (
	StateCreated    State = "created"
	StateConfigured State = "configured"
	StateExecuting  State = "executing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// maxRemoteSlots caps positional input slots when the declared count is
// unknown (remote workflows are not introspected before execution).
const maxRemoteSlots = 64

// serverScheme marks a workflow reference living on a server.
const serverScheme = "knime://"

// Handle drives one workflow: it owns the input/output slots and the chosen
// transport for the workflow's lifetime. A handle runs at most one
// execution at a time.
type Handle struct {
	mu sync.Mutex

	ref    string
	state  State
	closed bool

	cfg    *config.Config
	form   table.Form
	trans  transport.Transport
	layout *NodeLayout // nil for remote workflows

	reset        bool
	liveOutput   bool
	timeout      time.Duration
	pollInterval time.Duration

	inputs   []any
	inputSet []bool
	result   *types.ExecutionResult
	decoded  []any
}

// Option customizes handle construction.
type Option func(*options)

type options struct {
	cfg         *config.Config
	executable  string
	serverURL   string
	user        string
	password    string
	form        table.Form
	trans       transport.Transport
	transLocal  bool
	forceRemote bool
	reset       bool
	liveOutput  bool
	timeout     time.Duration
	poll        time.Duration
}

// WithConfig supplies a pre-loaded configuration instead of the default
// environment-resolved one.
func WithConfig(cfg *config.Config) Option { return func(o *options) { o.cfg = cfg } }

// WithExecutable overrides the engine executable path.
func WithExecutable(path string) Option { return func(o *options) { o.executable = path } }

// WithServer overrides the server URL root and credentials.
func WithServer(url, user, password string) Option {
	return func(o *options) {
		o.serverURL = url
		o.user = user
		o.password = password
	}
}

// WithPreferredForm selects the native form outputs are decoded into. The
// default is the DataFrame form.
func WithPreferredForm(form table.Form) Option { return func(o *options) { o.form = form } }

// WithRemote forces the remote transport even when a local executable is
// configured.
func WithRemote() Option { return func(o *options) { o.forceRemote = true } }

// WithReset asks the server to reset the workflow before executing.
func WithReset() Option { return func(o *options) { o.reset = true } }

// WithLiveOutput streams the local engine's output instead of capturing it.
func WithLiveOutput() Option { return func(o *options) { o.liveOutput = true } }

// WithTimeout bounds each execution.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithPollInterval tunes remote status polling.
func WithPollInterval(d time.Duration) Option { return func(o *options) { o.poll = d } }

// WithTransport injects a transport directly, bypassing selection. The
// handle is treated as remote: no bundle discovery runs.
func WithTransport(t transport.Transport) Option { return func(o *options) { o.trans = t } }

// withLocalTransport marks an injected transport as local (test hook).
func withLocalTransport(t transport.Transport) Option {
	return func(o *options) {
		o.trans = t
		o.transLocal = true
	}
}

// New constructs a handle for the workflow at ref. A local filesystem
// bundle selects the subprocess transport; a server path or knime:// URL
// selects the remote one. When both are configured, local wins unless
// WithRemote is given. Construction fails with NO_TRANSPORT_CONFIGURED when
// neither side is usable.
func New(ref string, opts ...Option) (*Handle, error) {
	var o options
	o.form = table.FormDataFrame
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		cfg = config.Default()
		cfg.ApplyEnv()
	}
	if o.executable != "" {
		cfg.Local.Executable = o.executable
	}
	if o.serverURL != "" {
		cfg.Server.URL = o.serverURL
		cfg.Server.User = o.user
		cfg.Server.Password = o.password
	}
	if o.timeout == 0 {
		o.timeout = cfg.Execute.Timeout
	}
	if o.poll == 0 {
		o.poll = cfg.Execute.PollInterval
	}

	h := &Handle{
		ref:          ref,
		state:        StateCreated,
		cfg:          cfg,
		form:         o.form,
		reset:        o.reset,
		liveOutput:   o.liveOutput,
		timeout:      o.timeout,
		pollInterval: o.poll,
	}

	local, err := h.selectTransport(&o)
	if err != nil {
		return nil, err
	}
	if local {
		layout, err := Discover(h.ref)
		if err != nil {
			return nil, err
		}
		h.layout = layout
		h.inputs = make([]any, len(layout.InputIDs))
		h.inputSet = make([]bool, len(layout.InputIDs))
		logger.Debug("workflow %s: %d container inputs, %d container outputs",
			ref, len(layout.InputIDs), len(layout.OutputIDs))
	} else {
		h.ref = resolveServerPath(h.ref, cfg)
		h.inputs = make([]any, maxRemoteSlots)
		h.inputSet = make([]bool, maxRemoteSlots)
	}
	return h, nil
}

// selectTransport picks the transport variant once. It reports whether the
// local variant was chosen.
func (h *Handle) selectTransport(o *options) (bool, error) {
	if o.trans != nil {
		h.trans = o.trans
		return o.transLocal, nil
	}
	remoteRef := strings.HasPrefix(h.ref, serverScheme)
	switch {
	case !o.forceRemote && !remoteRef && h.cfg.HasLocal():
		h.trans = transport.NewLocal(h.cfg.Local.Executable)
		return true, nil
	case h.cfg.HasServer():
		h.trans = transport.NewRemote(h.cfg.Server.URL, h.cfg.Server.User, h.cfg.Server.Password)
		return false, nil
	case h.cfg.HasLocal() && !remoteRef:
		h.trans = transport.NewLocal(h.cfg.Local.Executable)
		return true, nil
	}
	return false, types.NewError(types.CodeNoTransportConfigured,
		"neither a local executable nor server credentials are configured", nil)
}

// resolveServerPath anchors relative server workflow paths in the
// configured test directory ("/Users/{user}" by default).
func resolveServerPath(ref string, cfg *config.Config) string {
	if strings.HasPrefix(ref, serverScheme) || strings.HasPrefix(ref, "/") {
		return ref
	}
	return path.Join(cfg.ResolveTestDir(), ref)
}

// Ref returns the workflow reference the handle was built for.
func (h *Handle) Ref() string {
	return h.ref
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// NumInputs returns the declared input slot count, or -1 when unknown
// (remote workflows before execution).
func (h *Handle) NumInputs() int {
	if h.layout == nil {
		return -1
	}
	return len(h.layout.InputIDs)
}

// InputNames returns the container input node directory names, in slot
// order. Empty for remote workflows.
func (h *Handle) InputNames() []string {
	if h.layout == nil {
		return nil
	}
	out := make([]string, len(h.layout.InputDirs))
	copy(out, h.layout.InputDirs)
	return out
}

// SetInput stages a native table (ColumnMap or DataFrame) in the given
// input slot. Encoding is deferred to execution time. Valid while no
// execution is in flight.
func (h *Handle) SetInput(index int, native any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return types.NewError(types.CodeExecutionFailed, "handle is closed", nil)
	}
	if h.state == StateExecuting {
		return types.NewError(types.CodeAlreadyExecuting, "cannot stage inputs while executing", nil)
	}
	if index < 0 || index >= len(h.inputs) {
		return types.NewError(types.CodeSchemaMismatch,
			fmt.Sprintf("input slot %d out of range (workflow declares %d)", index, len(h.inputs)), nil)
	}
	h.inputs[index] = native
	h.inputSet[index] = true
	if h.state == StateCreated {
		h.state = StateConfigured
	}
	return nil
}

// Execute encodes the staged inputs, runs the workflow over the selected
// transport, and decodes the outputs into the output slots. It is not
// reentrant: a concurrent call fails with ALREADY_EXECUTING, and a
// completed handle must be Reset before executing again.
func (h *Handle) Execute(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return types.NewError(types.CodeExecutionFailed, "handle is closed", nil)
	}
	switch h.state {
	case StateExecuting:
		h.mu.Unlock()
		return types.NewError(types.CodeAlreadyExecuting, "execution already in progress", nil)
	case StateCompleted, StateFailed:
		h.mu.Unlock()
		return types.NewError(types.CodeAlreadyExecuting,
			"execution already finished; Reset the handle to run again", nil)
	}
	h.state = StateExecuting
	natives, err := h.stagedInputsLocked()
	h.mu.Unlock()
	if err != nil {
		h.finish(StateFailed, nil)
		return err
	}

	inputs := make([]types.DataTable, len(natives))
	for i, native := range natives {
		dt, encErr := table.Encode(native)
		if encErr != nil {
			h.finish(StateFailed, nil)
			return encErr
		}
		inputs[i] = dt
	}

	result, err := h.trans.Execute(ctx, h.ref, inputs, transport.Options{
		Timeout:       h.timeout,
		PollInterval:  h.pollInterval,
		Reset:         h.reset,
		LiveOutput:    h.liveOutput,
		InputNodeIDs:  h.inputNodeIDs(),
		OutputNodeIDs: h.outputNodeIDs(),
	})
	if err != nil {
		// Transport errors re-surface unchanged.
		h.finish(StateFailed, nil)
		return err
	}

	decoded := make([]any, len(result.Outputs))
	for i, dt := range result.Outputs {
		if decoded[i], err = table.Decode(dt, h.form); err != nil {
			h.finish(StateFailed, nil)
			return err
		}
	}
	h.mu.Lock()
	h.state = StateCompleted
	h.result = result
	h.decoded = decoded
	h.mu.Unlock()
	return nil
}

// stagedInputsLocked validates that the populated slots form a complete
// prefix of the declared inputs and returns them in order.
func (h *Handle) stagedInputsLocked() ([]any, error) {
	count := 0
	for i, set := range h.inputSet {
		if set {
			count = i + 1
		}
	}
	if h.layout != nil {
		count = len(h.layout.InputIDs)
	}
	natives := make([]any, 0, count)
	for i := 0; i < count; i++ {
		if !h.inputSet[i] {
			return nil, types.NewError(types.CodeExecutionFailed,
				fmt.Sprintf("input slot %d not populated", i), nil)
		}
		natives = append(natives, h.inputs[i])
	}
	return natives, nil
}

func (h *Handle) inputNodeIDs() []int {
	if h.layout == nil {
		return nil
	}
	return h.layout.InputIDs
}

func (h *Handle) outputNodeIDs() []int {
	if h.layout == nil {
		return nil
	}
	return h.layout.OutputIDs
}

func (h *Handle) finish(state State, result *types.ExecutionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
	h.result = result
}

// NumOutputs returns the number of decoded output slots. Valid only after a
// completed execution.
func (h *Handle) NumOutputs() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateCompleted {
		return 0, notExecutedErr(h.state)
	}
	return len(h.decoded), nil
}

// Output returns the decoded table in the given output slot, in the
// handle's preferred form.
func (h *Handle) Output(index int) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateCompleted {
		return nil, notExecutedErr(h.state)
	}
	if index < 0 || index >= len(h.decoded) {
		return nil, types.NewError(types.CodeSchemaMismatch,
			fmt.Sprintf("output slot %d out of range (workflow produced %d)", index, len(h.decoded)), nil)
	}
	return h.decoded[index], nil
}

// Outputs returns all decoded output tables in slot order.
func (h *Handle) Outputs() ([]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateCompleted {
		return nil, notExecutedErr(h.state)
	}
	out := make([]any, len(h.decoded))
	copy(out, h.decoded)
	return out, nil
}

// RawOutput returns the undecoded wire table in the given output slot.
func (h *Handle) RawOutput(index int) (types.DataTable, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateCompleted {
		return types.DataTable{}, notExecutedErr(h.state)
	}
	if index < 0 || index >= len(h.result.Outputs) {
		return types.DataTable{}, types.NewError(types.CodeSchemaMismatch,
			fmt.Sprintf("output slot %d out of range (workflow produced %d)", index, len(h.result.Outputs)), nil)
	}
	return h.result.Outputs[index], nil
}

// Result returns the full execution result of the last completed run.
func (h *Handle) Result() (*types.ExecutionResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateCompleted {
		return nil, notExecutedErr(h.state)
	}
	return h.result, nil
}

// Reset returns a terminal handle to the Configured state so it can execute
// again. Staged inputs are kept; outputs are discarded.
func (h *Handle) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateExecuting {
		return types.NewError(types.CodeAlreadyExecuting, "cannot reset while executing", nil)
	}
	h.result = nil
	h.decoded = nil
	h.state = StateCreated
	for _, set := range h.inputSet {
		if set {
			h.state = StateConfigured
			break
		}
	}
	return nil
}

// Close releases the handle. Execution temp artifacts are cleaned by the
// transports themselves on every exit path; Close marks the handle unusable
// and is safe to defer right after New.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// SVG returns the rendered workflow image shipped inside a local bundle.
func (h *Handle) SVG() ([]byte, error) {
	if h.layout == nil {
		return nil, types.NewError(types.CodeWorkflowNotFound,
			"workflow image is only available for local bundles", nil)
	}
	buf, err := os.ReadFile(filepath.Join(h.ref, "workflow.svg"))
	if err != nil {
		return nil, types.NewError(types.CodeWorkflowNotFound, "reading workflow.svg", err)
	}
	return buf, nil
}

func notExecutedErr(state State) *types.Error {
	return types.NewError(types.CodeWorkflowNotExecuted,
		fmt.Sprintf("outputs are not available in state %q", state), nil)
}
