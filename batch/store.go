package batch

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/teranos/clpipe/errors"
)

// ScriptMode is the permission compiled scripts are written with.
const ScriptMode os.FileMode = 0o755

// scriptStore writes compiled scripts where the scheduler can read them.
type scriptStore struct {
	fs  afero.Fs
	dir string
}

// path returns the script location for a job.
func (s scriptStore) path(jobName string) string {
	return filepath.Join(s.dir, jobName+".sh")
}

// write persists one script and returns its path.
func (s scriptStore) write(script CompiledScript) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create script directory %s", s.dir)
	}

	p := s.path(script.JobName)
	if err := afero.WriteFile(s.fs, p, []byte(script.Text), ScriptMode); err != nil {
		return "", errors.Wrapf(err, "write script %s", p)
	}
	// WriteFile leaves an existing file's mode alone
	if err := s.fs.Chmod(p, ScriptMode); err != nil {
		return "", errors.Wrapf(err, "chmod script %s", p)
	}
	return p, nil
}
