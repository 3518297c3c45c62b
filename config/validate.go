package config

import (
	"regexp"
	"strings"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Batch.Validate(); err != nil {
		return err
	}
	return c.FMRIPrep.Validate()
}

// Validate checks the batch section, including that a template can be built from it
func (b *BatchConfig) Validate() error {
	if _, ok := batch.PresetSpec(b.Scheduler); !ok {
		return errors.WithHint(
			errors.NewInvalidConfigError("batch.scheduler %q is not supported", b.Scheduler),
			"use one of: "+strings.Join(batch.Presets(), ", "))
	}

	if _, err := batch.ParseMemory(b.MemoryDefault); err != nil {
		return errors.NewInvalidConfigError("batch.memory_default: %v", err)
	}
	if _, err := batch.ParseWallTime(b.TimeDefault); err != nil {
		return errors.NewInvalidConfigError("batch.time_default: %v", err)
	}
	if b.ThreadsDefault < 1 {
		return errors.NewInvalidConfigError("batch.threads_default must be >= 1, got %d", b.ThreadsDefault)
	}

	// Concurrency: 0 is not "unlimited", it would never submit anything
	if b.Concurrency < 1 {
		return errors.NewInvalidConfigError("batch.concurrency must be >= 1, got %d", b.Concurrency)
	}
	if b.SubmitRate < 0 {
		return errors.NewInvalidConfigError("batch.submit_rate must be >= 0, got %f", b.SubmitRate)
	}

	if b.JobIDPattern != "" {
		if _, err := regexp.Compile(b.JobIDPattern); err != nil {
			return errors.NewInvalidConfigError("batch.job_id_pattern: %v", err)
		}
	}
	if _, err := b.ParsedExtras(); err != nil {
		return err
	}
	if _, err := b.Template(); err != nil {
		return err
	}
	return nil
}

// Validate checks the fmriprep overrides; empty values inherit the batch defaults
func (f *FMRIPrepConfig) Validate() error {
	if f.Memory != "" {
		if _, err := batch.ParseMemory(f.Memory); err != nil {
			return errors.NewInvalidConfigError("fmriprep.memory: %v", err)
		}
	}
	if f.Time != "" {
		if _, err := batch.ParseWallTime(f.Time); err != nil {
			return errors.NewInvalidConfigError("fmriprep.time: %v", err)
		}
	}
	if f.Threads < 0 {
		return errors.NewInvalidConfigError("fmriprep.threads must be >= 0, got %d", f.Threads)
	}
	return nil
}

// RequireDirectories reports which of the fmriprep directories are still empty.
func (f *FMRIPrepConfig) RequireDirectories() error {
	var missing []string
	if f.BIDSDirectory == "" {
		missing = append(missing, "bids_directory")
	}
	if f.WorkingDirectory == "" {
		missing = append(missing, "working_directory")
	}
	if f.OutputDirectory == "" {
		missing = append(missing, "output_directory")
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.WithHint(
		errors.NewInvalidConfigError("fmriprep needs %s", strings.Join(missing, ", ")),
		"set them in clpipe.toml under [fmriprep] or pass --bids-dir, --working-dir and --output-dir")
}
