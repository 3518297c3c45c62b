package logger

import "go.uber.org/zap"

// Standard field names for consistent structured logging across clpipe.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldJobName = "job_name"
	FieldJobID   = "job_id"
	FieldBatchID = "batch_id"
	FieldSubject = "subject"

	// Components
	FieldComponent = "component"
	FieldScheduler = "scheduler"
	FieldStep      = "step"

	// Process invocation
	FieldCommand    = "command"
	FieldScriptPath = "script_path"
	FieldExitCode   = "exit_code"
	FieldStderr     = "stderr"

	// Paths
	FieldLogDir     = "log_dir"
	FieldConfigPath = "config_path"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount     = "count"
	FieldSucceeded = "succeeded"
	FieldFailed    = "failed"

	// Timing
	FieldDurationMS = "duration_ms"
)

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	jobLogger := logger.ChildLogger(base, logger.FieldJobName, job.Name())
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
