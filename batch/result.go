package batch

// SubmissionResult is the outcome of handing one compiled script to the scheduler.
// Exactly one of JobID and Err is set.
type SubmissionResult struct {
	JobName    string
	ScriptPath string
	JobID      string
	ExitCode   int
	Stdout     string
	Stderr     string
	Err        error
}

// Succeeded reports whether the scheduler accepted the job.
func (r SubmissionResult) Succeeded() bool {
	return r.Err == nil && r.JobID != ""
}

// Summarize counts accepted and rejected results.
func Summarize(results []SubmissionResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
