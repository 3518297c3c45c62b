package batch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teranos/clpipe/errors"
	"github.com/teranos/clpipe/logger"
)

// Manager accumulates jobs, compiles them against a scheduler template and submits them.
//
// Compiled scripts are only valid for the job list and default profile they were built
// from; AddJob and UpdateResourceDefault discard them.
type Manager struct {
	mu sync.Mutex

	tmpl     SchedulerTemplate
	defaults ResourceProfile
	logDir   string
	jobs     []Job

	compiled []CompiledScript
	fresh    bool

	runner      Runner
	fs          afero.Fs
	scriptDir   string
	log         *zap.SugaredLogger
	concurrency int
	limiter     *rate.Limiter
}

// Option configures a Manager.
type Option func(*Manager)

// WithRunner replaces the os/exec runner, mostly for tests.
func WithRunner(r Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithFs sets the filesystem scripts are written to.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithScriptDir overrides the default <logDir>/scripts location.
func WithScriptDir(dir string) Option {
	return func(m *Manager) { m.scriptDir = dir }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Manager) { m.log = l }
}

// WithConcurrency bounds how many submit processes run at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n < 1 {
			n = 1
		}
		m.concurrency = n
	}
}

// WithRateLimit spaces submissions at most perSecond apart. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(m *Manager) {
		if perSecond <= 0 {
			m.limiter = nil
			return
		}
		m.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewManager creates a manager. defaults may be partial; anything still unset at
// compile time is reported per job.
func NewManager(tmpl SchedulerTemplate, defaults ResourceProfile, logDir string, opts ...Option) *Manager {
	m := &Manager{
		tmpl:        tmpl,
		defaults:    defaults.Clone(),
		logDir:      logDir,
		runner:      ExecRunner{},
		fs:          afero.NewOsFs(),
		log:         zap.NewNop().Sugar(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.scriptDir == "" {
		m.scriptDir = filepath.Join(logDir, "scripts")
	}
	return m
}

// Template returns the scheduler template the manager compiles against.
func (m *Manager) Template() SchedulerTemplate { return m.tmpl }

// LogDir returns the directory job output is directed to.
func (m *Manager) LogDir() string { return m.logDir }

// ScriptDir returns where SubmitJobs writes scripts.
func (m *Manager) ScriptDir() string { return m.scriptDir }

// AddJob appends a job. The manager keeps its own copy.
func (m *Manager) AddJob(job Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs = append(m.jobs, job.clone())
	m.invalidate()
	m.log.Debugw("Job added", logger.FieldJobName, job.Name(), logger.FieldCount, len(m.jobs))
}

// Jobs returns the queued jobs in insertion order.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, len(m.jobs))
	for i, j := range m.jobs {
		out[i] = j.clone()
	}
	return out
}

// UpdateResourceDefault merges partial into the default profile.
// Jobs already added pick up the change at the next compile.
func (m *Manager) UpdateResourceDefault(partial ResourceProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.defaults = Merge(m.defaults, partial)
	m.invalidate()
	m.log.Debugw("Resource default updated", "profile", m.defaults.String())
}

// ResourceDefault returns a copy of the current default profile.
func (m *Manager) ResourceDefault() ResourceProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaults.Clone()
}

func (m *Manager) invalidate() {
	m.compiled = nil
	m.fresh = false
}

// CompileJobs renders every job. Either all jobs compile or none do; every failure is
// collected into a single *CompilationError.
func (m *Manager) CompileJobs() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invalidate()

	if m.tmpl == nil {
		return &CompilationError{errs: []error{errors.New("no scheduler template configured")}}
	}

	var errs []error
	scripts := make([]CompiledScript, 0, len(m.jobs))
	seen := make(map[string]int, len(m.jobs))

	for i, job := range m.jobs {
		script, err := m.compileOne(i, job, seen)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scripts = append(scripts, script)
	}

	if len(errs) > 0 {
		m.log.Warnw("Compilation failed",
			logger.FieldCount, len(m.jobs),
			logger.FieldFailed, len(errs),
			logger.FieldScheduler, m.tmpl.Name())
		return &CompilationError{errs: errs}
	}

	m.compiled = scripts
	m.fresh = true
	m.log.Infow("Jobs compiled",
		logger.FieldCount, len(scripts),
		logger.FieldScheduler, m.tmpl.Name(),
		logger.FieldLogDir, m.logDir)
	return nil
}

func (m *Manager) compileOne(index int, job Job, seen map[string]int) (CompiledScript, error) {
	name := job.Name()

	if err := m.tmpl.ValidateJobName(name); err != nil {
		return CompiledScript{}, &InvalidJobError{Index: index, Name: name, Reason: err.Error()}
	}
	if prev, dup := seen[name]; dup {
		return CompiledScript{}, &InvalidJobError{
			Index:  index,
			Name:   name,
			Reason: fmt.Sprintf("duplicate of job %d; script files would collide", prev),
		}
	}
	seen[name] = index

	if strings.TrimSpace(job.Body()) == "" {
		return CompiledScript{}, &InvalidJobError{Index: index, Name: name, Reason: "command body is empty"}
	}

	profile := m.defaults.Clone()
	if override, ok := job.Resources(); ok {
		profile = Merge(profile, override)
	}

	header, err := m.tmpl.RenderHeader(profile, name, m.logDir)
	if err != nil {
		var rpe *InvalidResourceProfileError
		if errors.As(err, &rpe) {
			return CompiledScript{}, &InvalidResourceProfileError{JobName: name, Problems: rpe.Problems}
		}
		return CompiledScript{}, &InvalidJobError{Index: index, Name: name, Reason: err.Error()}
	}

	body := job.Body()
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}

	return CompiledScript{
		JobName: name,
		Profile: profile,
		Header:  header,
		Text:    header + "\n" + body,
	}, nil
}

// Scripts returns the output of the last successful compile.
func (m *Manager) Scripts() ([]CompiledScript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fresh {
		return nil, &NotCompiledError{Op: "scripts"}
	}
	out := make([]CompiledScript, len(m.compiled))
	for i, s := range m.compiled {
		s.Profile = s.Profile.Clone()
		out[i] = s
	}
	return out, nil
}

// PrintJobs writes every compiled script to w in job order, separated by a blank line.
// Nothing is written unless the compile is current.
func (m *Manager) PrintJobs(w io.Writer) error {
	scripts, err := m.snapshot("print")
	if err != nil {
		return err
	}

	for i, s := range scripts {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return errors.Wrap(err, "write dry run")
			}
		}
		if _, err := io.WriteString(w, s.Text); err != nil {
			return errors.Wrapf(err, "write dry run for %s", s.JobName)
		}
	}
	return nil
}

// SubmitJobs writes each compiled script and hands it to the scheduler.
//
// The returned slice is aligned with job order and always complete: a job that failed,
// or was never started because ctx ended, has Err set (a *SubmissionError whose cause is
// ctx.Err() for skipped jobs). The error return is only non-nil when there is nothing
// current to submit.
func (m *Manager) SubmitJobs(ctx context.Context) ([]SubmissionResult, error) {
	scripts, err := m.snapshot("submit")
	if err != nil {
		return nil, err
	}

	store := scriptStore{fs: m.fs, dir: m.scriptDir}
	results := make([]SubmissionResult, len(scripts))
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, script := range scripts {
		i, script := i, script
		g.Go(func() error {
			results[i] = m.submitOne(ctx, store, script)
			return nil
		})
	}
	_ = g.Wait()

	succeeded, failed := Summarize(results)
	m.log.Infow("Batch submitted",
		logger.FieldScheduler, m.tmpl.Name(),
		logger.FieldCount, len(results),
		logger.FieldSucceeded, succeeded,
		logger.FieldFailed, failed,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	return results, nil
}

func (m *Manager) submitOne(ctx context.Context, store scriptStore, script CompiledScript) SubmissionResult {
	res := SubmissionResult{JobName: script.JobName}
	log := logger.ChildLogger(m.log, logger.FieldJobName, script.JobName)

	if err := m.wait(ctx); err != nil {
		res.Err = &SubmissionError{JobName: script.JobName, Cause: err}
		log.Warnw("Job skipped", logger.FieldError, err)
		return res
	}

	path, err := store.write(script)
	if err != nil {
		res.Err = &SubmissionError{JobName: script.JobName, Cause: err}
		log.Errorw("Script write failed", logger.FieldError, err)
		return res
	}
	res.ScriptPath = path

	exe, args := m.tmpl.SubmitCommand(path)
	log.Debugw("Submitting", logger.FieldCommand, append([]string{exe}, args...), logger.FieldScriptPath, path)

	out, err := m.runner.Run(ctx, exe, args)
	if err != nil {
		res.ExitCode = out.ExitCode
		res.Stdout = out.Stdout
		res.Stderr = out.Stderr
		res.Err = &SubmissionError{JobName: script.JobName, ExitCode: out.ExitCode, Stderr: out.Stderr, Cause: err}
		log.Errorw("Submit process failed", logger.FieldError, err)
		return res
	}

	parsed := m.tmpl.ParseSubmitResponse(out.Stdout, out.Stderr, out.ExitCode)
	parsed.JobName = script.JobName
	parsed.ScriptPath = path
	var se *SubmissionError
	if errors.As(parsed.Err, &se) {
		se.JobName = script.JobName
	}

	if parsed.Err != nil {
		log.Errorw("Scheduler rejected job",
			logger.FieldExitCode, parsed.ExitCode,
			logger.FieldStderr, strings.TrimSpace(parsed.Stderr),
			logger.FieldError, parsed.Err)
	} else {
		log.Infow("Job submitted", logger.FieldJobID, parsed.JobID)
	}
	return parsed
}

// wait blocks for the rate limiter and reports ctx ending before the job could start.
func (m *Manager) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.limiter == nil {
		return nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (m *Manager) snapshot(op string) ([]CompiledScript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fresh {
		return nil, &NotCompiledError{Op: op}
	}
	out := make([]CompiledScript, len(m.compiled))
	copy(out, m.compiled)
	return out, nil
}
