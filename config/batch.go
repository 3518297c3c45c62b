package config

import (
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/errors"
)

// Template builds the scheduler template: the preset named by Scheduler with the
// submit command, extra directives and job ID pattern overridden where set.
func (b *BatchConfig) Template() (*batch.DirectiveTemplate, error) {
	spec, ok := batch.PresetSpec(b.Scheduler)
	if !ok {
		return nil, errors.NewInvalidConfigError("batch.scheduler %q is not supported", b.Scheduler)
	}

	if strings.TrimSpace(b.SubmitCommand) != "" {
		words, err := shellquote.Split(b.SubmitCommand)
		if err != nil {
			return nil, errors.NewInvalidConfigError("batch.submit_command: %v", err)
		}
		spec.SubmitExecutable = words[0]
		spec.SubmitArgs = words[1:]
	}

	spec.Directives = append(spec.Directives, b.Directives...)

	if b.JobIDPattern != "" {
		spec.JobIDPattern = b.JobIDPattern
	}

	tmpl, err := batch.NewDirectiveTemplate(spec)
	if err != nil {
		return nil, errors.NewInvalidConfigError("batch: %v", err)
	}
	return tmpl, nil
}

// ResourceProfile is the default profile every job starts from.
func (b *BatchConfig) ResourceProfile() (batch.ResourceProfile, error) {
	p, err := batch.NewResourceProfile(b.MemoryDefault, b.TimeDefault, b.ThreadsDefault)
	if err != nil {
		return batch.ResourceProfile{}, errors.Wrap(err, "batch defaults")
	}

	if b.EmailAddress != "" {
		p = p.WithExtra("mail_user", b.EmailAddress)
	}

	extras, err := b.ParsedExtras()
	if err != nil {
		return batch.ResourceProfile{}, err
	}
	for k, v := range extras {
		p = p.WithExtra(k, v)
	}
	return p, nil
}

// ParsedExtras splits the "KEY=value" entries of Extras.
func (b *BatchConfig) ParsedExtras() (map[string]string, error) {
	out := make(map[string]string, len(b.Extras))
	for _, entry := range b.Extras {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.WithHint(
				errors.NewInvalidConfigError("batch.extras entry %q is not KEY=value", entry),
				`e.g. extras = ["partition=gpu", "SINGULARITY_BINDPATH=/data"]`)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// ManagerOptions translates the submission settings into manager options.
func (b *BatchConfig) ManagerOptions() []batch.Option {
	opts := []batch.Option{
		batch.WithConcurrency(b.Concurrency),
		batch.WithRateLimit(b.SubmitRate),
	}
	if b.ScriptDir != "" {
		opts = append(opts, batch.WithScriptDir(ExpandPath(b.ScriptDir)))
	}
	return opts
}

// ResourceOverride is the fmriprep profile applied over the batch default.
// Only non-empty fields are set.
func (f *FMRIPrepConfig) ResourceOverride() (batch.ResourceProfile, error) {
	var p batch.ResourceProfile
	if f.Memory != "" {
		m, err := batch.ParseMemory(f.Memory)
		if err != nil {
			return p, errors.NewInvalidConfigError("fmriprep.memory: %v", err)
		}
		p = p.WithMemory(m)
	}
	if f.Time != "" {
		d, err := batch.ParseWallTime(f.Time)
		if err != nil {
			return p, errors.NewInvalidConfigError("fmriprep.time: %v", err)
		}
		p = p.WithWallTime(d)
	}
	if f.Threads > 0 {
		p = p.WithThreads(f.Threads)
	}
	return p, nil
}
