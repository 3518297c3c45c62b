package batch

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/clpipe/errors"
)

// SchedulerTemplate knows one scheduler's header syntax and how to drive its submit binary.
//
// Implementations must be pure: RenderHeader and SubmitCommand depend only on their arguments.
type SchedulerTemplate interface {
	// Name identifies the scheduler ("slurm", "pbs").
	Name() string

	// ValidateJobName rejects names the scheduler (or the script file name) cannot carry.
	ValidateJobName(name string) error

	// RenderHeader returns the shebang plus resource directives for one job.
	// Job stdout/stderr are directed under logDir.
	RenderHeader(profile ResourceProfile, jobName, logDir string) (string, error)

	// SubmitCommand describes the process that submits scriptPath.
	SubmitCommand(scriptPath string) (executable string, args []string)

	// ParseSubmitResponse turns the submit process outcome into a result.
	// A non-zero exit code is a failure regardless of stdout.
	ParseSubmitResponse(stdout, stderr string, exitCode int) SubmissionResult
}

// DirectiveSpec is the configuration form of a DirectiveTemplate. Directive strings are
// text/template bodies rendered against the job; see headerData for the fields available.
type DirectiveSpec struct {
	Scheduler        string
	Shell            string
	Prefix           string
	Directives       []string
	ExtraDirectives  map[string]string
	JobNamePattern   string
	MaxJobNameLength int
	SubmitExecutable string
	SubmitArgs       []string
	JobIDPattern     string
}

// headerData is what directive templates see.
type headerData struct {
	JobName  string
	LogDir   string
	Stdout   string
	Stderr   string
	Memory   Memory
	WallTime time.Duration
	Threads  int
}

// extraData is what extras directive templates see.
type extraData struct {
	Key   string
	Value string
}

// DirectiveTemplate renders "#PREFIX flag" style headers, which covers Slurm, PBS/Torque and LSF.
type DirectiveTemplate struct {
	spec       DirectiveSpec
	directives []*template.Template
	extras     map[string]*template.Template
	namePat    *regexp.Regexp
	jobIDPat   *regexp.Regexp
}

var _ SchedulerTemplate = (*DirectiveTemplate)(nil)

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var templateFuncs = template.FuncMap{
	"slurmTime": FormatSlurmTime,
	"hms":       FormatHMS,
	"minutes":   func(d time.Duration) int64 { return int64((d + time.Minute - 1) / time.Minute) },
	"quote":     func(s string) string { return shellquote.Join(s) },
}

// NewDirectiveTemplate compiles a spec. All template and regexp errors surface here,
// never at render time.
func NewDirectiveTemplate(spec DirectiveSpec) (*DirectiveTemplate, error) {
	if spec.Scheduler == "" {
		return nil, errors.New("scheduler name is required")
	}
	if spec.SubmitExecutable == "" {
		return nil, errors.Newf("%s: submit executable is required", spec.Scheduler)
	}
	if spec.Shell == "" {
		spec.Shell = "#!/bin/bash"
	}

	t := &DirectiveTemplate{
		spec:   spec,
		extras: make(map[string]*template.Template, len(spec.ExtraDirectives)),
	}

	for i, d := range spec.Directives {
		tmpl, err := template.New(fmt.Sprintf("directive-%d", i)).
			Funcs(templateFuncs).
			Option("missingkey=error").
			Parse(d)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: directive %q", spec.Scheduler, d)
		}
		t.directives = append(t.directives, tmpl)
	}

	for key, d := range spec.ExtraDirectives {
		tmpl, err := template.New("extra-" + key).Funcs(templateFuncs).Parse(d)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: extra directive %q", spec.Scheduler, key)
		}
		t.extras[key] = tmpl
	}

	if spec.JobNamePattern != "" {
		pat, err := regexp.Compile(spec.JobNamePattern)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: job name pattern", spec.Scheduler)
		}
		t.namePat = pat
	}

	if spec.JobIDPattern == "" {
		return nil, errors.Newf("%s: job id pattern is required", spec.Scheduler)
	}
	pat, err := regexp.Compile(spec.JobIDPattern)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: job id pattern", spec.Scheduler)
	}
	if pat.NumSubexp() < 1 {
		return nil, errors.Newf("%s: job id pattern %q needs a capture group", spec.Scheduler, spec.JobIDPattern)
	}
	t.jobIDPat = pat

	return t, nil
}

// Name implements SchedulerTemplate.
func (t *DirectiveTemplate) Name() string { return t.spec.Scheduler }

// ValidateJobName implements SchedulerTemplate.
func (t *DirectiveTemplate) ValidateJobName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("job name is empty")
	}
	if strings.ContainsAny(name, "/\\\x00") || name == "." || name == ".." {
		return errors.Newf("job name %q cannot be used as a script file name", name)
	}
	if t.spec.MaxJobNameLength > 0 && len(name) > t.spec.MaxJobNameLength {
		return errors.Newf("job name is %d characters, %s allows at most %d",
			len(name), t.spec.Scheduler, t.spec.MaxJobNameLength)
	}
	if t.namePat != nil && !t.namePat.MatchString(name) {
		return errors.Newf("job name %q is not valid for %s (must match %s)",
			name, t.spec.Scheduler, t.namePat.String())
	}
	return nil
}

// LogPaths returns where a job's stdout and stderr land under logDir.
func LogPaths(logDir, jobName string) (stdout, stderr string) {
	return filepath.Join(logDir, "Output-"+jobName+".out"),
		filepath.Join(logDir, "Output-"+jobName+".err")
}

// RenderHeader implements SchedulerTemplate.
func (t *DirectiveTemplate) RenderHeader(profile ResourceProfile, jobName, logDir string) (string, error) {
	if err := profile.Validate(); err != nil {
		return "", err
	}
	if strings.ContainsAny(logDir, "\r\n") {
		return "", errors.Newf("log directory %q contains a line break", logDir)
	}

	stdout, stderr := LogPaths(logDir, jobName)
	data := headerData{
		JobName:  jobName,
		LogDir:   logDir,
		Stdout:   stdout,
		Stderr:   stderr,
		Memory:   *profile.Memory,
		WallTime: *profile.WallTime,
		Threads:  *profile.Threads,
	}

	var lines []string
	var problems []string

	for _, tmpl := range t.directives {
		line, err := execute(tmpl, data)
		if err != nil {
			return "", errors.Wrapf(err, "%s: render %s", t.spec.Scheduler, tmpl.Name())
		}
		line = strings.TrimSpace(line)
		if strings.ContainsAny(line, "\r\n") {
			problems = append(problems, fmt.Sprintf("directive %s renders across several lines", tmpl.Name()))
			continue
		}
		if line != "" {
			lines = append(lines, t.directive(line))
		}
	}

	var exports []string
	for _, key := range profile.ExtraKeys() {
		value := profile.Extras[key]
		if strings.ContainsAny(value, "\r\n") {
			problems = append(problems, fmt.Sprintf("extra %q contains a line break", key))
			continue
		}
		if tmpl, ok := t.extras[key]; ok {
			line, err := execute(tmpl, extraData{Key: key, Value: value})
			if err != nil {
				return "", errors.Wrapf(err, "%s: render extra %s", t.spec.Scheduler, key)
			}
			line = strings.TrimSpace(line)
			if strings.ContainsAny(line, "\r\n") {
				problems = append(problems, fmt.Sprintf("extra %q renders across several lines", key))
				continue
			}
			if line != "" {
				lines = append(lines, t.directive(line))
			}
			continue
		}
		if !envKeyPattern.MatchString(key) {
			problems = append(problems, fmt.Sprintf(
				"extra %q is neither a %s directive nor a valid environment variable name", key, t.spec.Scheduler))
			continue
		}
		exports = append(exports, fmt.Sprintf("export %s=%s", key, shellquote.Join(value)))
	}
	if len(problems) > 0 {
		return "", &InvalidResourceProfileError{JobName: jobName, Problems: problems}
	}

	var b strings.Builder
	b.WriteString(t.spec.Shell)
	b.WriteByte('\n')
	for _, line := range append(lines, exports...) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// directive prefixes one rendered directive line; it never contains a line break.
func (t *DirectiveTemplate) directive(line string) string {
	if t.spec.Prefix == "" {
		return line
	}
	return t.spec.Prefix + " " + line
}

func execute(tmpl *template.Template, data interface{}) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// SubmitCommand implements SchedulerTemplate.
func (t *DirectiveTemplate) SubmitCommand(scriptPath string) (string, []string) {
	args := make([]string, 0, len(t.spec.SubmitArgs)+1)
	args = append(args, t.spec.SubmitArgs...)
	args = append(args, scriptPath)
	return t.spec.SubmitExecutable, args
}

// ParseSubmitResponse implements SchedulerTemplate.
func (t *DirectiveTemplate) ParseSubmitResponse(stdout, stderr string, exitCode int) SubmissionResult {
	res := SubmissionResult{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}

	if exitCode != 0 {
		res.Err = &SubmissionError{ExitCode: exitCode, Stderr: stderr}
		return res
	}

	m := t.jobIDPat.FindStringSubmatch(stdout)
	if len(m) < 2 || m[1] == "" {
		res.Err = &SubmissionError{
			Stderr: stderr,
			Cause:  errors.Newf("no job id in %s output %q", t.spec.Scheduler, strings.TrimSpace(stdout)),
		}
		return res
	}

	res.JobID = m[1]
	return res
}

// FormatSlurmTime renders D-HH:MM:SS (days omitted when zero).
func FormatSlurmTime(d time.Duration) string {
	total := ceilSeconds(d)
	days := total / 86400
	rem := total % 86400
	if days > 0 {
		return fmt.Sprintf("%d-%02d:%02d:%02d", days, rem/3600, rem%3600/60, rem%60)
	}
	return fmt.Sprintf("%02d:%02d:%02d", rem/3600, rem%3600/60, rem%60)
}

func ceilSeconds(d time.Duration) int64 {
	total := int64(d / time.Second)
	if d%time.Second > 0 {
		total++
	}
	return total
}

// FormatHMS renders HH:MM:SS with hours allowed past 24, as PBS walltime expects.
func FormatHMS(d time.Duration) string {
	total := ceilSeconds(d)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}
