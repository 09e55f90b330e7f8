package transport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yqhp/knime-bridge/internal/enginetest"
	"yqhp/knime-bridge/pkg/types"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("engine stubs are POSIX shell scripts")
	}
}

func colorTempTable() types.DataTable {
	return types.DataTable{
		Spec: types.TableSpec{
			{Name: "color", Type: types.ColumnString},
			{Name: "temp", Type: types.ColumnDouble},
		},
		Rows: []types.Row{
			{"blau", -273.15},
			{"gelb", 100.0},
		},
	}
}

func TestLocalRejectsMissingExecutable(t *testing.T) {
	for _, exe := range []string{"", filepath.Join(t.TempDir(), "no-such-engine")} {
		l := NewLocal(exe)
		_, err := l.Execute(context.Background(), "wf", nil, Options{})
		require.True(t, types.IsCode(err, types.CodeExecutableNotFound), "exe %q: got %v", exe, err)
	}
}

func TestLocalRejectsMoreTablesThanInputNodes(t *testing.T) {
	requireShell(t)
	stub := filepath.Join(t.TempDir(), "knime")
	require.NoError(t, enginetest.WritePassthroughStub(stub))

	l := NewLocal(stub)
	_, err := l.Execute(context.Background(), "wf",
		[]types.DataTable{colorTempTable()}, Options{})
	require.True(t, types.IsExecutionFailed(err), "got %v", err)
}

func TestLocalPassthrough(t *testing.T) {
	requireShell(t)
	stub := filepath.Join(t.TempDir(), "knime")
	require.NoError(t, enginetest.WritePassthroughStub(stub))

	l := NewLocal(stub)
	result, err := l.Execute(context.Background(), t.TempDir(),
		[]types.DataTable{colorTempTable()},
		Options{InputNodeIDs: []int{1}, OutputNodeIDs: []int{2}})
	require.NoError(t, err)
	require.Equal(t, types.ExecutionSucceeded, result.Status)
	require.Len(t, result.Outputs, 1)
	require.Equal(t, colorTempTable(), result.Outputs[0])
}

func TestLocalStagesEachSlotSeparately(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	stub := filepath.Join(dir, "knime")
	record := filepath.Join(dir, "invocation.log")
	require.NoError(t, enginetest.WriteRecordingStub(stub, record))

	second := types.DataTable{
		Spec: types.TableSpec{{Name: "vote", Type: types.ColumnLong}},
		Rows: []types.Row{{int64(42)}},
	}

	l := NewLocal(stub)
	result, err := l.Execute(context.Background(), dir,
		[]types.DataTable{colorTempTable(), second},
		Options{InputNodeIDs: []int{1, 2}, OutputNodeIDs: []int{3, 4}})
	require.NoError(t, err)
	require.Equal(t, colorTempTable(), result.Outputs[0])
	require.Equal(t, second, result.Outputs[1])

	buf, err := os.ReadFile(record)
	require.NoError(t, err)
	args := strings.Split(strings.TrimSpace(string(buf)), "\n")
	var inputArgs, outputArgs []string
	for _, arg := range args {
		if strings.Contains(arg, ",inputPathOrUrl,") {
			inputArgs = append(inputArgs, arg)
		}
		if strings.Contains(arg, ",outputPathOrUrl,") {
			outputArgs = append(outputArgs, arg)
		}
	}
	require.Len(t, inputArgs, 2)
	require.Len(t, outputArgs, 2)
	require.NotEqual(t, inputArgs[0], inputArgs[1])
	require.Contains(t, args, "-application")
	require.Contains(t, args, "org.knime.product.KNIME_BATCH_APPLICATION")
}

func TestLocalSurfacesEngineFailure(t *testing.T) {
	requireShell(t)
	stub := filepath.Join(t.TempDir(), "knime")
	require.NoError(t, enginetest.WriteFailingStub(stub, 3, "node 5 blew up"))

	l := NewLocal(stub)
	_, err := l.Execute(context.Background(), t.TempDir(), nil,
		Options{OutputNodeIDs: []int{2}})
	require.True(t, types.IsExecutionFailed(err), "got %v", err)

	var coded *types.Error
	require.True(t, errors.As(err, &coded))
	require.Contains(t, coded.Diagnostic, "node 5 blew up")
	require.Contains(t, coded.Message, "code 3")
}

func TestLocalMissingOutputArtifact(t *testing.T) {
	requireShell(t)
	stub := filepath.Join(t.TempDir(), "knime")
	require.NoError(t, enginetest.WritePassthroughStub(stub))

	// No inputs staged, so the passthrough stub writes nothing.
	l := NewLocal(stub)
	_, err := l.Execute(context.Background(), t.TempDir(), nil,
		Options{OutputNodeIDs: []int{2}})
	require.True(t, types.IsExecutionFailed(err), "got %v", err)
}

func TestLocalTimeout(t *testing.T) {
	requireShell(t)
	stub := filepath.Join(t.TempDir(), "knime")
	require.NoError(t, os.WriteFile(stub, []byte("#!/bin/sh\nsleep 30\n"), 0o755))

	l := NewLocal(stub)
	start := time.Now()
	_, err := l.Execute(context.Background(), t.TempDir(), nil,
		Options{Timeout: 200 * time.Millisecond})
	require.True(t, types.IsExecutionTimeout(err), "got %v", err)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestLocalCleansTempArtifacts(t *testing.T) {
	requireShell(t)
	t.Setenv("TMPDIR", t.TempDir())
	stub := filepath.Join(os.TempDir(), "knime")
	require.NoError(t, enginetest.WritePassthroughStub(stub))

	l := NewLocal(stub)
	_, err := l.Execute(context.Background(), t.TempDir(),
		[]types.DataTable{colorTempTable()},
		Options{InputNodeIDs: []int{1}, OutputNodeIDs: []int{2}})
	require.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(os.TempDir(), "knime-bridge-*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}
