package executor

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on POSIX shell utilities")
	}
}

func TestRun_CapturesOutput(t *testing.T) {
	skipOnWindows(t)

	r := NewRunner()
	result, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
	assert.False(t, result.TimedOut)
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	skipOnWindows(t)

	r := NewRunner()
	result, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "exit 3"},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.TimedOut)
}

func TestRun_TimeoutIsDistinguished(t *testing.T) {
	skipOnWindows(t)

	r := NewRunner()
	result, err := r.Run(context.Background(), Command{
		Name:    "sleep",
		Args:    []string{"5"},
		Timeout: 100 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Equal(t, -1, result.ExitCode)
}

func TestRun_MissingBinary(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-binary-xyz"})

	assert.Error(t, err)
}

func TestRun_WorkingDirectory(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	r := NewRunner()
	result, err := r.Run(context.Background(), Command{
		Name: "pwd",
		Dir:  dir,
	})

	require.NoError(t, err)
	assert.Contains(t, result.Stdout, dir)
}

func TestLookPath(t *testing.T) {
	skipOnWindows(t)

	assert.True(t, LookPath("sh"))
	assert.False(t, LookPath("definitely-not-a-binary-xyz"))
}
