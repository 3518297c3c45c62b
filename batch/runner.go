package batch

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/teranos/clpipe/errors"
)

// ProcessOutput is what a finished submit process left behind.
type ProcessOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts the scheduler's submit binary. The error return is reserved for
// failures to run at all (binary missing, context cancelled); a non-zero exit is
// reported through ProcessOutput.ExitCode.
type Runner interface {
	Run(ctx context.Context, executable string, args []string) (ProcessOutput, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Env, when non-nil, replaces the inherited environment.
	Env []string
}

var _ Runner = ExecRunner{}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, executable string, args []string) (ProcessOutput, error) {
	cmd := exec.CommandContext(ctx, executable, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := ProcessOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, errors.Wrapf(err, "run %s", executable)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, executable string, args []string) (ProcessOutput, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, executable string, args []string) (ProcessOutput, error) {
	return f(ctx, executable, args)
}
