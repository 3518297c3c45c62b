package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/config"
	"github.com/teranos/clpipe/display"
	"github.com/teranos/clpipe/errors"
	"github.com/teranos/clpipe/logger"
	"github.com/teranos/clpipe/runlog"
)

// Replaced in tests.
var (
	newRunner = func() batch.Runner { return batch.ExecRunner{} }
	now       = time.Now
)

// loadedConfig is a validated configuration plus the most specific file it came from.
type loadedConfig struct {
	*config.Config
	Path string
}

func loadConfig(cmd *cobra.Command) (*loadedConfig, error) {
	explicit, _ := cmd.Flags().GetString("config")
	v, files, err := config.NewViper(explicit)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := &loadedConfig{Config: cfg}
	if len(files) > 0 {
		out.Path = files[len(files)-1]
	}
	logger.Debugw("Configuration loaded", logger.FieldConfigPath, out.Path, "files", files)
	return out, nil
}

// batchRun is one command's worth of jobs headed for the scheduler.
type batchRun struct {
	step     string
	subjects []string
	logDir   string
	// applied with UpdateResourceDefault before any job is built
	override batch.ResourceProfile
	// builds the jobs; the manager's default is already final when called
	jobs     func(m *batch.Manager) ([]batch.Job, error)
	submit   bool
	dumpPath string
}

func runBatch(cmd *cobra.Command, cfg *loadedConfig, r batchRun) error {
	log := logger.ChildLogger(logger.ComponentLogger("batch"), logger.FieldStep, r.step)

	tmpl, err := cfg.Batch.Template()
	if err != nil {
		return err
	}
	defaults, err := cfg.Batch.ResourceProfile()
	if err != nil {
		return err
	}

	opts := append(cfg.Batch.ManagerOptions(),
		batch.WithRunner(newRunner()),
		batch.WithLogger(log),
	)
	mgr := batch.NewManager(tmpl, defaults, r.logDir, opts...)
	if !r.override.IsEmpty() {
		mgr.UpdateResourceDefault(r.override)
	}

	jobs, err := r.jobs(mgr)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		mgr.AddJob(job)
	}

	if err := mgr.CompileJobs(); err != nil {
		return errors.WithHint(err, "fix the jobs above or the [batch] defaults; nothing was submitted")
	}

	out := cmd.OutOrStdout()
	if !r.submit {
		return mgr.PrintJobs(out)
	}

	// the scheduler opens Output-*.out/err here when the job starts
	if err := os.MkdirAll(r.logDir, config.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create log directory %s", r.logDir)
	}

	log.Infow("Submitting batch", logger.FieldCount, len(jobs), logger.FieldScheduler, tmpl.Name(), logger.FieldLogDir, r.logDir)
	results, err := mgr.SubmitJobs(cmd.Context())
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		err = display.OutputJSON(out, display.SubmissionRows(results))
	} else {
		err = display.SubmissionSummary(out, results)
	}
	if err != nil {
		return err
	}

	recordRun(context.WithoutCancel(cmd.Context()), cfg, r, tmpl.Name(), results)

	if r.dumpPath != "" {
		if err := config.Dump(cfg.Config, r.dumpPath, now()); err != nil {
			log.Warnw("Failed to dump configuration", logger.FieldError, err)
		}
	}

	ok, failed := batch.Summarize(results)
	log.Infow("Batch finished", logger.FieldSucceeded, ok, logger.FieldFailed, failed)
	if failed > 0 {
		return errors.WithHint(
			errors.Newf("%d of %d jobs were not submitted", failed, len(results)),
			"rerun with -v to see the scheduler output for each job")
	}
	return nil
}

// recordRun appends the batch to the run log. Failures are logged, never fatal:
// the jobs are already queued.
func recordRun(ctx context.Context, cfg *loadedConfig, r batchRun, scheduler string, results []batch.SubmissionResult) {
	if !cfg.RunLog.Enabled {
		return
	}
	log := logger.ComponentLogger("runlog")

	store, err := runlog.Open(config.ExpandPath(cfg.RunLog.Path), log)
	if err != nil {
		log.Warnw("Run log unavailable", logger.FieldError, err)
		return
	}
	defer store.Close()

	run, err := store.RecordBatch(ctx, runlog.Run{
		Step:        r.step,
		Subjects:    r.subjects,
		Scheduler:   scheduler,
		LogDir:      r.logDir,
		ConfigPath:  cfg.Path,
		SubmittedAt: now(),
	}, results)
	if err != nil {
		log.Warnw("Failed to record run", logger.FieldError, err)
		return
	}
	log.Infow("Run recorded", logger.FieldBatchID, run.ID)
}
