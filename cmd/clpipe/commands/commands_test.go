package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/config"
)

// fakeScheduler accepts every script except those whose path contains reject.
type fakeScheduler struct {
	mu      sync.Mutex
	scripts []string
	reject  string
}

func (f *fakeScheduler) Run(ctx context.Context, executable string, args []string) (batch.ProcessOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := args[len(args)-1]
	f.scripts = append(f.scripts, script)
	if f.reject != "" && strings.Contains(script, f.reject) {
		return batch.ProcessOutput{Stderr: "sbatch: error: Batch job submission failed", ExitCode: 1}, nil
	}
	return batch.ProcessOutput{Stdout: fmt.Sprintf("Submitted batch job %d\n", 500+len(f.scripts))}, nil
}

type study struct {
	root   string
	bids   string
	output string
}

// setupStudy isolates the config cascade in a temp directory holding a clpipe.toml.
func setupStudy(t *testing.T) (*study, *fakeScheduler) {
	t.Helper()
	pterm.DisableColor()
	for _, k := range []string{"SLURM_JOB_ID", "PBS_JOBID", "LSB_JOBID"} {
		t.Setenv(k, "")
	}

	root := t.TempDir()
	s := &study{
		root:   root,
		bids:   filepath.Join(root, "bids"),
		output: filepath.Join(root, "derivatives"),
	}
	for _, sub := range []string{"sub-01", "sub-02"} {
		require.NoError(t, os.MkdirAll(filepath.Join(s.bids, sub), 0755))
	}

	oldSystem := config.SystemConfigPath
	config.SystemConfigPath = filepath.Join(root, "etc", "config.toml")
	t.Cleanup(func() { config.SystemConfigPath = oldSystem })
	t.Setenv("HOME", filepath.Join(root, "home"))

	toml := fmt.Sprintf(`
[batch]
scheduler = "slurm"
email_address = "lab@example.edu"

[fmriprep]
bids_directory = %q
working_directory = %q
output_directory = %q
image_path = "/images/fmriprep.sif"
freesurfer_license_path = "/opt/fs/license.txt"

[heudiconv]
heuristic_file = "/opt/clpipe/setup_heuristic.py"
output_file = %q
scratch_dir = %q

[runlog]
path = %q
`, s.bids, filepath.Join(root, "work"), s.output,
		filepath.Join(root, "dicom_info.tsv"), filepath.Join(root, "scratch"),
		filepath.Join(root, "home", ".clpipe", "runlog.db"))
	require.NoError(t, os.WriteFile(filepath.Join(root, config.ProjectConfigName), []byte(toml), 0644))
	t.Chdir(root)

	fake := &fakeScheduler{}
	oldRunner, oldNow := newRunner, now
	newRunner = func() batch.Runner { return fake }
	now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { newRunner, now = oldRunner, oldNow })

	return s, fake
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFMRIPrep_DryRun(t *testing.T) {
	_, fake := setupStudy(t)

	out, err := execute(t, "fmriprep", "sub-02", "01")
	require.NoError(t, err)

	assert.Empty(t, fake.scripts, "dry run must not submit")
	i2 := strings.Index(out, "#SBATCH --job-name=sub-02fmriprep")
	i1 := strings.Index(out, "#SBATCH --job-name=sub-01fmriprep")
	require.True(t, i2 >= 0 && i1 >= 0, out)
	assert.Less(t, i2, i1, "jobs print in argument order")

	assert.Contains(t, out, "#SBATCH --mem=20000M")
	assert.Contains(t, out, "#SBATCH --time=10:00:00")
	assert.Contains(t, out, "#SBATCH --cpus-per-task=12")
	assert.Contains(t, out, "#SBATCH --mail-user=lab@example.edu")
	assert.Contains(t, out, "--nthreads 12")
	assert.Contains(t, out, "batchOutput/Output-sub-01fmriprep.out")
}

func TestFMRIPrep_DiscoversSubjects(t *testing.T) {
	setupStudy(t)

	out, err := execute(t, "fmriprep")
	require.NoError(t, err)
	assert.Contains(t, out, "--participant-label 01")
	assert.Contains(t, out, "--participant-label 02")
}

func TestFMRIPrep_FlagOverridesConfig(t *testing.T) {
	s, _ := setupStudy(t)
	logDir := filepath.Join(s.root, "logs")

	out, err := execute(t, "fmriprep", "01", "--log-dir", logDir)
	require.NoError(t, err)
	assert.Contains(t, out, "--output="+filepath.Join(logDir, "Output-sub-01fmriprep.out"))
}

func TestFMRIPrep_Submit(t *testing.T) {
	s, fake := setupStudy(t)

	out, err := execute(t, "fmriprep", "01", "02", "--submit")
	require.NoError(t, err)

	require.Len(t, fake.scripts, 2)
	assert.Equal(t, filepath.Join(s.output, "batchOutput", "scripts", "sub-01fmriprep.sh"), fake.scripts[0])
	assert.FileExists(t, fake.scripts[0])
	assert.DirExists(t, filepath.Join(s.output, "batchOutput"))

	assert.Contains(t, out, "501")
	assert.Contains(t, out, "2 submitted, 0 failed")

	dumped, err := os.ReadFile(filepath.Join(s.output, FMRIPrepConfigDumpName))
	require.NoError(t, err)
	assert.Contains(t, string(dumped), "09:30AM on March 01, 2024")

	runs, err := execute(t, "runs", "--json")
	require.NoError(t, err)
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(runs), &decoded), runs)
	require.Len(t, decoded, 1)
	assert.Equal(t, "fmriprep", decoded[0]["step"])
	assert.EqualValues(t, 2, decoded[0]["succeeded"])
	assert.Equal(t, filepath.Join(s.root, config.ProjectConfigName), decoded[0]["config_path"])

	jobs, err := execute(t, "runs", "show", decoded[0]["id"].(string))
	require.NoError(t, err)
	assert.Contains(t, jobs, "sub-02fmriprep")
	assert.Contains(t, jobs, "502")
}

func TestFMRIPrep_PartialFailure(t *testing.T) {
	_, fake := setupStudy(t)
	fake.reject = "sub-02"

	out, err := execute(t, "fmriprep", "01", "02", "--submit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 jobs were not submitted")
	assert.Len(t, fake.scripts, 2, "a rejected job does not stop the batch")
	assert.Contains(t, out, "1 submitted, 1 failed")
}

func TestFMRIPrep_MissingDirectories(t *testing.T) {
	setupStudy(t)

	_, err := execute(t, "fmriprep", "01", "--bids-dir", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bids_directory")
}

func TestFMRIPrep_CompileErrorSubmitsNothing(t *testing.T) {
	_, fake := setupStudy(t)

	_, err := execute(t, "fmriprep", "01", "a/b", "--submit")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "compilation failed"), err.Error())
	assert.Empty(t, fake.scripts)
}

func TestBIDSSetup(t *testing.T) {
	s, _ := setupStudy(t)

	out, err := execute(t, "bids-setup", "--dicom-dir", "/raw/{subject}/*/*.dcm", "--subject", "001", "--session", "pre")
	require.NoError(t, err)
	assert.Contains(t, out, "#SBATCH --job-name=heudiconv_setup")
	assert.Contains(t, out, "module add heudiconv")
	assert.Contains(t, out, "-ss pre")
	assert.Contains(t, out, filepath.Join(s.root, "dicom_info.tsv"))
	assert.Contains(t, out, filepath.Join(s.root, "batchOutput", "Output-heudiconv_setup.out"))

	_, err = execute(t, "bids-setup", "--subject", "001")
	assert.Error(t, err, "dicom-dir is required")
}

func TestSubmitManifest(t *testing.T) {
	s, fake := setupStudy(t)
	path := filepath.Join(s.root, "jobs.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[defaults]
memory = "2G"

[[job]]
name = "first"
body = "echo one"

[[job]]
name = "second"
command = ["echo", "two words"]
time = "15"
`), 0644))

	out, err := execute(t, "submit", path)
	require.NoError(t, err)
	assert.Contains(t, out, "#SBATCH --mem=2048M")
	assert.Contains(t, out, "#SBATCH --time=00:15:00")
	assert.Contains(t, out, "echo 'two words'")
	assert.Less(t, strings.Index(out, "echo one"), strings.Index(out, "two words"))

	out, err = execute(t, "submit", path, "--submit", "--json")
	require.NoError(t, err)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows), out)
	require.Len(t, rows, 2)
	assert.Equal(t, "first", rows[0]["job_name"])
	assert.Len(t, fake.scripts, 2)
	assert.True(t, strings.HasPrefix(fake.scripts[0], filepath.Join(s.root, "batchOutput")))
}

func TestConfigCommands(t *testing.T) {
	s, _ := setupStudy(t)

	out, err := execute(t, "config", "show", "--format", "json")
	require.NoError(t, err)
	var shown map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "slurm", shown["batch"].(map[string]interface{})["scheduler"])

	out, err = execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	dump := filepath.Join(s.root, "dump", "config.toml")
	_, err = execute(t, "config", "dump", dump)
	require.NoError(t, err)
	assert.FileExists(t, dump)

	out, err = execute(t, "config", "where")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(s.root, config.ProjectConfigName))

	t.Setenv("CLPIPE_BATCH_SCHEDULER", "lsf")
	_, err = execute(t, "config", "validate")
	assert.Error(t, err)
}

func TestRuns_Empty(t *testing.T) {
	setupStudy(t)
	out, err := execute(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")
}

func TestVersion(t *testing.T) {
	setupStudy(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "clpipe "))

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"go_version"`)
}
