// Package pipeline builds the command bodies clpipe wraps into batch jobs.
//
// Bodies are plain shell text; the batch package treats them as opaque.
package pipeline

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/afero"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/errors"
)

// FMRIPrepParams holds everything one fmriprep participant run needs.
type FMRIPrepParams struct {
	ImagePath             string
	BIDSDirectory         string
	OutputDirectory       string
	WorkingDirectory      string
	FreesurferLicensePath string
	BindPaths             string // singularity -B value, empty = none
	Threads               int
}

// Validate reports missing required fields.
func (p FMRIPrepParams) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"image path", p.ImagePath},
		{"BIDS directory", p.BIDSDirectory},
		{"output directory", p.OutputDirectory},
		{"working directory", p.WorkingDirectory},
		{"FreeSurfer license path", p.FreesurferLicensePath},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return errors.NewInvalidRequestError("fmriprep: missing %s", strings.Join(missing, ", "))
	}
	if p.Threads < 1 {
		return errors.NewInvalidRequestError("fmriprep: threads must be >= 1, got %d", p.Threads)
	}
	return nil
}

// FMRIPrepJobName is the job name for one participant.
func FMRIPrepJobName(subject string) string {
	return "sub-" + subject + "fmriprep"
}

// FMRIPrepBody renders the singularity invocation for one participant label (without "sub-").
func FMRIPrepBody(p FMRIPrepParams, subject string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if subject == "" {
		return "", errors.NewInvalidRequestError("fmriprep: empty participant label")
	}

	args := []string{"singularity", "run"}
	if p.BindPaths != "" {
		args = append(args, "-B", p.BindPaths)
	}
	args = append(args,
		"-e", "--no-home",
		p.ImagePath,
		p.BIDSDirectory,
		p.OutputDirectory,
		"participant",
		"--participant-label", subject,
		"-w", p.WorkingDirectory,
		"--fs-license-file", p.FreesurferLicensePath,
		"--nthreads", strconv.Itoa(p.Threads),
	)

	return "unset PYTHONPATH; " + shellquote.Join(args...), nil
}

// FMRIPrepJobs builds one job per subject, in the order given.
func FMRIPrepJobs(p FMRIPrepParams, subjects []string) ([]batch.Job, error) {
	jobs := make([]batch.Job, 0, len(subjects))
	for _, sub := range subjects {
		body, err := FMRIPrepBody(p, sub)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, batch.NewJob(FMRIPrepJobName(sub), body))
	}
	return jobs, nil
}

// NormalizeSubjects strips an optional "sub-" prefix and drops duplicates, keeping order.
func NormalizeSubjects(subjects []string) []string {
	seen := make(map[string]bool, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		s = strings.TrimPrefix(strings.TrimSpace(s), "sub-")
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// DiscoverSubjects lists participant labels from the sub-* directories of a BIDS dataset, sorted.
func DiscoverSubjects(fs afero.Fs, bidsDir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, bidsDir)
	if err != nil {
		return nil, errors.Wrapf(err, "read BIDS directory %s", bidsDir)
	}

	var subjects []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "sub-") {
			continue
		}
		if label := strings.TrimPrefix(e.Name(), "sub-"); label != "" {
			subjects = append(subjects, label)
		}
	}
	sort.Strings(subjects)

	if len(subjects) == 0 {
		return nil, errors.WithHint(
			errors.NewNotFoundError("no sub-* directories in %s", bidsDir),
			"check fmriprep.bids_directory points at the dataset root")
	}
	return subjects, nil
}
