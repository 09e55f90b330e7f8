package workflow

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yqhp/knime-bridge/internal/config"
	"yqhp/knime-bridge/internal/enginetest"
	"yqhp/knime-bridge/internal/transport"
	"yqhp/knime-bridge/pkg/table"
	"yqhp/knime-bridge/pkg/types"
)

// fakeTransport mirrors its inputs back as outputs after an optional delay.
type fakeTransport struct {
	mu    sync.Mutex
	delay time.Duration
	err   error
	calls int
}

func (f *fakeTransport) Execute(ctx context.Context, ref string, inputs []types.DataTable, opts transport.Options) (*types.ExecutionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.ExecutionResult{
		Status:   types.ExecutionSucceeded,
		Outputs:  inputs,
		Duration: time.Millisecond,
	}, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func writeBundle(t *testing.T, inputs, outputs int) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, enginetest.WriteWorkflowBundle(dir, inputs, outputs))
	return dir
}

func colorTempMap() *table.ColumnMap {
	return table.NewColumnMap().
		MustAdd("color", []any{"blau", "gelb"}).
		MustAdd("temp", []any{-273.15, 100.0})
}

func TestNewWithoutAnyTransport(t *testing.T) {
	_, err := New("some-flow", WithConfig(config.Default()))
	require.True(t, types.IsCode(err, types.CodeNoTransportConfigured), "got %v", err)
}

func TestNewLocalWinsOverServer(t *testing.T) {
	bundle := writeBundle(t, 2, 1)
	cfg := config.Default()
	cfg.Local.Executable = "/opt/knime/knime"
	cfg.Server = config.ServerConfig{URL: "https://knime.example.org", User: "alice", Password: "secret"}

	h, err := New(bundle, WithConfig(cfg))
	require.NoError(t, err)
	defer h.Close()

	require.IsType(t, &transport.Local{}, h.trans)
	require.Equal(t, 2, h.NumInputs())
	require.Len(t, h.InputNames(), 2)
}

func TestNewForceRemoteResolvesServerPath(t *testing.T) {
	cfg := config.Default()
	cfg.Local.Executable = "/opt/knime/knime"
	cfg.Server = config.ServerConfig{URL: "https://knime.example.org", User: "alice", Password: "secret"}

	h, err := New("myflow", WithConfig(cfg), WithRemote())
	require.NoError(t, err)
	defer h.Close()

	require.IsType(t, &transport.Remote{}, h.trans)
	require.Equal(t, "/Users/alice/myflow", h.Ref())
	require.Equal(t, -1, h.NumInputs())
	require.Nil(t, h.InputNames())
}

func TestNewServerSchemeSelectsRemote(t *testing.T) {
	cfg := config.Default()
	cfg.Local.Executable = "/opt/knime/knime"
	cfg.Server = config.ServerConfig{URL: "https://knime.example.org", User: "alice", Password: "secret"}

	h, err := New("knime://server/flow", WithConfig(cfg))
	require.NoError(t, err)
	defer h.Close()

	require.IsType(t, &transport.Remote{}, h.trans)
	require.Equal(t, "knime://server/flow", h.Ref())
}

func TestSetInputBounds(t *testing.T) {
	bundle := writeBundle(t, 1, 1)
	h, err := New(bundle, WithConfig(config.Default()), withLocalTransport(&fakeTransport{}))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetInput(0, colorTempMap()))
	for _, slot := range []int{-1, 1, 5} {
		err := h.SetInput(slot, colorTempMap())
		require.True(t, types.IsSchemaMismatch(err), "slot %d: got %v", slot, err)
	}
}

func TestExecuteLifecycle(t *testing.T) {
	bundle := writeBundle(t, 1, 1)
	fake := &fakeTransport{}
	h, err := New(bundle, WithConfig(config.Default()),
		withLocalTransport(fake), WithPreferredForm(table.FormColumnMap))
	require.NoError(t, err)
	defer h.Close()

	require.Equal(t, StateCreated, h.State())
	_, err = h.Output(0)
	require.True(t, types.IsCode(err, types.CodeWorkflowNotExecuted), "got %v", err)

	require.NoError(t, h.SetInput(0, colorTempMap()))
	require.Equal(t, StateConfigured, h.State())

	require.NoError(t, h.Execute(context.Background()))
	require.Equal(t, StateCompleted, h.State())

	n, err := h.NumOutputs()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out, err := h.Output(0)
	require.NoError(t, err)
	m, ok := out.(*table.ColumnMap)
	require.True(t, ok, "output is %T", out)
	require.True(t, m.Equal(colorTempMap()))

	// A finished handle refuses to run again until reset.
	err = h.Execute(context.Background())
	require.True(t, types.IsCode(err, types.CodeAlreadyExecuting), "got %v", err)

	require.NoError(t, h.Reset())
	require.Equal(t, StateConfigured, h.State())
	_, err = h.Output(0)
	require.True(t, types.IsCode(err, types.CodeWorkflowNotExecuted), "got %v", err)

	require.NoError(t, h.Execute(context.Background()))
	require.Equal(t, 2, fake.callCount())
}

func TestExecuteConcurrentCallRejected(t *testing.T) {
	bundle := writeBundle(t, 1, 1)
	fake := &fakeTransport{delay: 300 * time.Millisecond}
	h, err := New(bundle, WithConfig(config.Default()), withLocalTransport(fake))
	require.NoError(t, err)
	defer h.Close()
	require.NoError(t, h.SetInput(0, colorTempMap()))

	done := make(chan error, 1)
	go func() { done <- h.Execute(context.Background()) }()

	require.Eventually(t, func() bool { return h.State() == StateExecuting },
		2*time.Second, 5*time.Millisecond)
	err = h.Execute(context.Background())
	require.True(t, types.IsCode(err, types.CodeAlreadyExecuting), "got %v", err)
	err = h.SetInput(0, colorTempMap())
	require.True(t, types.IsCode(err, types.CodeAlreadyExecuting), "got %v", err)

	require.NoError(t, <-done)
	require.Equal(t, 1, fake.callCount())
}

func TestExecuteRequiresAllDeclaredInputs(t *testing.T) {
	bundle := writeBundle(t, 2, 1)
	h, err := New(bundle, WithConfig(config.Default()), withLocalTransport(&fakeTransport{}))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetInput(0, colorTempMap()))
	err = h.Execute(context.Background())
	require.True(t, types.IsExecutionFailed(err), "got %v", err)
	require.Equal(t, StateFailed, h.State())
}

func TestExecuteSurfacesTransportError(t *testing.T) {
	bundle := writeBundle(t, 1, 1)
	want := types.NewDiagnosticError(types.CodeExecutionFailed, "engine exited with code 4", "boom", nil)
	h, err := New(bundle, WithConfig(config.Default()), withLocalTransport(&fakeTransport{err: want}))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetInput(0, colorTempMap()))
	err = h.Execute(context.Background())
	require.Same(t, want, err)
	require.Equal(t, StateFailed, h.State())

	_, err = h.Result()
	require.True(t, types.IsCode(err, types.CodeWorkflowNotExecuted), "got %v", err)
}

func TestClosedHandleRefusesEverything(t *testing.T) {
	bundle := writeBundle(t, 1, 1)
	h, err := New(bundle, WithConfig(config.Default()), withLocalTransport(&fakeTransport{}))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	require.Error(t, h.SetInput(0, colorTempMap()))
	require.Error(t, h.Execute(context.Background()))
}

func TestEndToEndLocalPassthrough(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("engine stubs are POSIX shell scripts")
	}
	bundle := writeBundle(t, 1, 1)
	stub := filepath.Join(t.TempDir(), "knime")
	require.NoError(t, enginetest.WritePassthroughStub(stub))

	cfg := config.Default()
	cfg.Local.Executable = stub

	h, err := New(bundle, WithConfig(cfg), WithPreferredForm(table.FormColumnMap))
	require.NoError(t, err)
	defer h.Close()

	in := colorTempMap()
	require.NoError(t, h.SetInput(0, in))
	require.NoError(t, h.Execute(context.Background()))

	out, err := h.Output(0)
	require.NoError(t, err)
	m, ok := out.(*table.ColumnMap)
	require.True(t, ok, "output is %T", out)
	require.True(t, m.Equal(in), "round trip diverged: %v", m)

	raw, err := h.RawOutput(0)
	require.NoError(t, err)
	require.Equal(t, types.ColumnDouble, raw.Spec[1].Type)
}
