package batch

import (
	"fmt"
	"strings"

	"github.com/teranos/clpipe/errors"
)

// Sentinels for errors.Is checks; every typed error below unwraps to one of these.
var (
	ErrInvalidJob             = errors.New("invalid job")
	ErrInvalidResourceProfile = errors.New("invalid resource profile")
	ErrCompilation            = errors.New("compilation failed")
	ErrNotCompiled            = errors.New("jobs not compiled")
	ErrSubmission             = errors.New("submission failed")
)

// InvalidJobError reports a job whose name or body the target scheduler cannot accept.
type InvalidJobError struct {
	Index  int
	Name   string
	Reason string
}

func (e *InvalidJobError) Error() string {
	return fmt.Sprintf("job %d (%q): %s", e.Index, e.Name, e.Reason)
}

func (e *InvalidJobError) Unwrap() error { return ErrInvalidJob }

// InvalidResourceProfileError lists every problem found in one profile.
type InvalidResourceProfileError struct {
	JobName  string
	Problems []string
}

func (e *InvalidResourceProfileError) Error() string {
	msg := strings.Join(e.Problems, "; ")
	if e.JobName == "" {
		return "resource profile: " + msg
	}
	return fmt.Sprintf("resource profile for %q: %s", e.JobName, msg)
}

func (e *InvalidResourceProfileError) Unwrap() error { return ErrInvalidResourceProfile }

// CompilationError aggregates every per-job failure from one CompileJobs call.
type CompilationError struct {
	errs []error
}

func (e *CompilationError) Error() string {
	lines := make([]string, 0, len(e.errs)+1)
	lines = append(lines, fmt.Sprintf("compilation failed for %d job(s):", len(e.errs)))
	for _, err := range e.errs {
		lines = append(lines, "  - "+err.Error())
	}
	return strings.Join(lines, "\n")
}

// Errors returns the individual job errors in job order.
func (e *CompilationError) Errors() []error {
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

// Is lets callers match both the aggregate and any contained error kind.
func (e *CompilationError) Is(target error) bool {
	if target == ErrCompilation {
		return true
	}
	for _, err := range e.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// NotCompiledError is returned when print or submit runs against stale state.
type NotCompiledError struct {
	Op string
}

func (e *NotCompiledError) Error() string {
	return fmt.Sprintf("%s: jobs changed since the last successful compile; call CompileJobs first", e.Op)
}

func (e *NotCompiledError) Unwrap() error { return ErrNotCompiled }

// SubmissionError describes one job the scheduler did not accept.
type SubmissionError struct {
	JobName  string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *SubmissionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "submit %q", e.JobName)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, ": %s", stderr)
	}
	return b.String()
}

// Is matches ErrSubmission; the cause (e.g. context.Canceled) is reachable through Unwrap.
func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

func (e *SubmissionError) Unwrap() error { return e.Cause }
