package batch

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	t.Run("captures output and exit code", func(t *testing.T) {
		out, err := ExecRunner{}.Run(context.Background(), "sh", []string{"-c", "echo out; echo err >&2; exit 3"})
		require.NoError(t, err)
		assert.Equal(t, "out\n", out.Stdout)
		assert.Equal(t, "err\n", out.Stderr)
		assert.Equal(t, 3, out.ExitCode)
	})

	t.Run("success", func(t *testing.T) {
		out, err := ExecRunner{}.Run(context.Background(), "sh", []string{"-c", "echo Submitted batch job 77"})
		require.NoError(t, err)
		assert.Zero(t, out.ExitCode)

		res := Slurm().ParseSubmitResponse(out.Stdout, out.Stderr, out.ExitCode)
		assert.Equal(t, "77", res.JobID)
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := ExecRunner{}.Run(context.Background(), "clpipe-no-such-binary", nil)
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ExecRunner{}.Run(ctx, "sh", []string{"-c", "sleep 5"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
