package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"yqhp/knime-bridge/pkg/logger"
	"yqhp/knime-bridge/pkg/table"
	"yqhp/knime-bridge/pkg/types"
)

// batchApplication is the Eclipse application ID of the engine's headless
// batch executor.
const batchApplication = "org.knime.product.KNIME_BATCH_APPLICATION"

// Local executes workflows by spawning the engine's batch executor and
// exchanging tables through temporary wire-format files.
type Local struct {
	executable string
}

// NewLocal creates a local transport for the given executable path. The
// path must already be resolved (explicit config or environment); an empty
// path fails at execute time, before any subprocess is spawned.
func NewLocal(executable string) *Local {
	return &Local{executable: executable}
}

var _ Transport = (*Local)(nil)

// Execute runs the workflow bundle at ref through the batch executor,
// blocking until the process exits. All temporary artifacts are removed on
// every exit path.
func (l *Local) Execute(ctx context.Context, ref string, inputs []types.DataTable, opts Options) (*types.ExecutionResult, error) {
	start := time.Now()

	if l.executable == "" {
		return nil, types.NewError(types.CodeExecutableNotFound,
			"no engine executable configured (set local.executable or $KNIME_EXEC)", nil)
	}
	if _, err := os.Stat(l.executable); err != nil {
		return nil, types.NewError(types.CodeExecutableNotFound,
			fmt.Sprintf("engine executable not found: %s", l.executable), err)
	}
	if len(inputs) > len(opts.InputNodeIDs) {
		return nil, types.NewError(types.CodeExecutionFailed,
			fmt.Sprintf("workflow declares %d container inputs, got %d tables", len(opts.InputNodeIDs), len(inputs)), nil)
	}

	workflowDir, err := filepath.Abs(ref)
	if err != nil {
		return nil, types.NewError(types.CodeExecutionFailed, fmt.Sprintf("resolving workflow path %q", ref), err)
	}

	tempDir := filepath.Join(os.TempDir(), "knime-bridge-"+uuid.NewString())
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		return nil, types.NewError(types.CodeExecutionFailed, "creating temp dir", err)
	}
	defer os.RemoveAll(tempDir)
	logger.Debug("local execution temp dir: %s", tempDir)

	args := []string{
		"-nosplash",
		"--launcher.suppressErrors",
		"-application", batchApplication,
		"-data", filepath.Join(tempDir, "knime-data"),
		"-workflowDir=" + workflowDir,
	}
	for i, dt := range inputs {
		nodeID := opts.InputNodeIDs[i]
		path := filepath.Join(tempDir, fmt.Sprintf("input_%d.json", nodeID))
		buf, err := table.MarshalWire(dt)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, buf, 0o600); err != nil {
			return nil, types.NewError(types.CodeExecutionFailed, "staging input table", err)
		}
		args = append(args, fmt.Sprintf("-option=%d,inputPathOrUrl,%s,String", nodeID, path))
	}
	outputPaths := make([]string, len(opts.OutputNodeIDs))
	for i, nodeID := range opts.OutputNodeIDs {
		outputPaths[i] = filepath.Join(tempDir, fmt.Sprintf("output_%d.json", nodeID))
		args = append(args, fmt.Sprintf("-option=%d,outputPathOrUrl,%s,String", nodeID, outputPaths[i]))
	}

	cmdCtx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, l.executable, args...)
	var stdout, stderr bytes.Buffer
	if opts.LiveOutput {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	logger.Debug("engine invocation: %s %s", l.executable, strings.Join(args, " "))
	runErr := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, types.NewDiagnosticError(types.CodeExecutionTimeout,
			fmt.Sprintf("engine did not exit within %v", opts.timeout()), stderr.String(), cmdCtx.Err())
	}
	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, types.NewDiagnosticError(types.CodeExecutionFailed,
			fmt.Sprintf("engine exited with code %d", exitCode), stderr.String(), runErr)
	}

	outputs := make([]types.DataTable, 0, len(outputPaths))
	for i, path := range outputPaths {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewDiagnosticError(types.CodeExecutionFailed,
				fmt.Sprintf("engine produced no output artifact for node %d", opts.OutputNodeIDs[i]),
				stderr.String(), err)
		}
		dt, err := table.UnmarshalWire(buf)
		if err != nil {
			// Malformed engine output keeps its schema-mismatch identity.
			return nil, err
		}
		outputs = append(outputs, dt)
	}

	return &types.ExecutionResult{
		Status:   types.ExecutionSucceeded,
		Outputs:  outputs,
		Duration: time.Since(start),
	}, nil
}
