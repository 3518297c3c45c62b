// Package manifest decodes TOML job manifests for generic batch submission.
//
// A manifest lists jobs in submission order, each with a shell body (or an
// argv list that is shell-quoted into one) and optional resource overrides:
//
//	[defaults]
//	memory = "8G"
//
//	[[job]]
//	name = "prep-01"
//	body = "python prep.py --subject 01"
//	time = "2:00:00"
//
//	[[job]]
//	name = "prep-02"
//	command = ["python", "prep.py", "--subject", "02"]
//	[job.extras]
//	partition = "gpu"
package manifest

import (
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kballard/go-shellquote"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/errors"
)

// Resources is the resource block shared by [defaults] and each [[job]].
type Resources struct {
	Memory  string            `toml:"memory"`
	Time    string            `toml:"time"`
	Threads int               `toml:"threads"`
	Extras  map[string]string `toml:"extras"`
}

// JobEntry is one [[job]] table.
type JobEntry struct {
	Name    string   `toml:"name"`
	Body    string   `toml:"body"`
	Command []string `toml:"command"`
	Resources
}

// Manifest is a decoded job manifest.
type Manifest struct {
	Defaults Resources  `toml:"defaults"`
	Job      []JobEntry `toml:"job"`
}

// Decode reads a manifest and rejects keys it does not recognize.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	md, err := toml.NewDecoder(r).Decode(&m)
	if err != nil {
		return nil, errors.NewInvalidRequestError("manifest is not valid TOML: %s", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("manifest has unknown keys: %s", strings.Join(keys, ", ")),
			"jobs accept name, body, command, memory, time, threads and an extras table")
	}
	if len(m.Job) == 0 {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("manifest declares no jobs"),
			"add at least one [[job]] table")
	}
	return &m, nil
}

// Load decodes the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open manifest %s", path)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest %s", path)
	}
	return m, nil
}

// Profile converts a resource block to a partial profile; unset fields stay unset.
func (r Resources) Profile() (batch.ResourceProfile, error) {
	var p batch.ResourceProfile
	if r.Memory != "" {
		m, err := batch.ParseMemory(r.Memory)
		if err != nil {
			return p, err
		}
		p = p.WithMemory(m)
	}
	if r.Time != "" {
		d, err := batch.ParseWallTime(r.Time)
		if err != nil {
			return p, err
		}
		p = p.WithWallTime(d)
	}
	if r.Threads != 0 {
		p = p.WithThreads(r.Threads)
	}
	for k, v := range r.Extras {
		p = p.WithExtra(k, v)
	}
	return p, nil
}

// DefaultOverride returns the [defaults] block as a partial profile for
// Manager.UpdateResourceDefault.
func (m *Manifest) DefaultOverride() (batch.ResourceProfile, error) {
	p, err := m.Defaults.Profile()
	if err != nil {
		return p, errors.Wrap(err, "manifest defaults")
	}
	return p, nil
}

// Jobs converts every entry to a batch.Job, in manifest order. Problems across
// entries are collected into one error.
func (m *Manifest) Jobs() ([]batch.Job, error) {
	jobs := make([]batch.Job, 0, len(m.Job))
	var problems []string
	for i, e := range m.Job {
		job, err := e.toJob()
		if err != nil {
			problems = append(problems, (&batch.InvalidJobError{Index: i, Name: e.Name, Reason: err.Error()}).Error())
			continue
		}
		jobs = append(jobs, job)
	}
	if len(problems) > 0 {
		return nil, errors.NewInvalidRequestError("manifest jobs: %s", strings.Join(problems, "; "))
	}
	return jobs, nil
}

func (e JobEntry) toJob() (batch.Job, error) {
	if strings.TrimSpace(e.Name) == "" {
		return batch.Job{}, errors.New("missing name")
	}
	body := e.Body
	switch {
	case body != "" && len(e.Command) > 0:
		return batch.Job{}, errors.New("set body or command, not both")
	case len(e.Command) > 0:
		body = shellquote.Join(e.Command...)
	case strings.TrimSpace(body) == "":
		return batch.Job{}, errors.New("missing body or command")
	}

	override, err := e.Resources.Profile()
	if err != nil {
		return batch.Job{}, err
	}
	if override.IsEmpty() {
		return batch.NewJob(e.Name, body), nil
	}
	return batch.NewJob(e.Name, body, batch.WithResources(override)), nil
}
