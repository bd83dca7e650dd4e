package execx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesStdout(t *testing.T) {
	out, _, err := Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestRun_NonZeroExit(t *testing.T) {
	_, stderr, err := Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	require.Error(t, err)

	var execErr *Error
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Equal(t, "oops\n", stderr)
	assert.Equal(t, []string{"sh", "-c", "echo oops >&2; exit 3"}, execErr.Command)
}

func TestRun_MissingBinary(t *testing.T) {
	_, _, err := Run(context.Background(), "definitely-not-a-real-binary-xyz")
	require.Error(t, err)

	var execErr *Error
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, -1, execErr.ExitCode)
}

func TestExecRunner_Dir(t *testing.T) {
	dir := t.TempDir()
	out, _, err := ExecRunner{Dir: dir}.Run(context.Background(), "pwd")
	require.NoError(t, err)
	assert.Contains(t, out, dir)
}
