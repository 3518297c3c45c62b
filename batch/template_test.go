package batch

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/clpipe/errors"
)

func testProfile(t *testing.T) ResourceProfile {
	t.Helper()
	p, err := NewResourceProfile("5000", "1:00:00", 1)
	require.NoError(t, err)
	return p
}

func TestSlurmRenderHeader(t *testing.T) {
	t.Run("renders directives in order", func(t *testing.T) {
		header, err := Slurm().RenderHeader(testProfile(t), "sub-01fmriprep", "/logs")
		require.NoError(t, err)

		want := "#!/bin/bash\n" +
			"#SBATCH --job-name=sub-01fmriprep\n" +
			"#SBATCH --output=/logs/Output-sub-01fmriprep.out\n" +
			"#SBATCH --error=/logs/Output-sub-01fmriprep.err\n" +
			"#SBATCH --mem=5000M\n" +
			"#SBATCH --time=01:00:00\n" +
			"#SBATCH --cpus-per-task=1\n" +
			"#SBATCH --no-requeue\n"
		assert.Equal(t, want, header)
	})

	t.Run("is deterministic", func(t *testing.T) {
		p := testProfile(t).WithExtra("mail_user", "lab@example.edu").WithExtra("SINGULARITY_BINDPATH", "/data")
		first, err := Slurm().RenderHeader(p, "job", "/logs")
		require.NoError(t, err)
		second, err := Slurm().RenderHeader(p, "job", "/logs")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("maps known extras and exports the rest", func(t *testing.T) {
		p := testProfile(t).
			WithExtra("mail_user", "lab@example.edu").
			WithExtra("SINGULARITY_BINDPATH", "/data,/scratch").
			WithExtra("NOTE", "hello world")

		header, err := Slurm().RenderHeader(p, "job", "/logs")
		require.NoError(t, err)

		assert.Contains(t, header, "#SBATCH --mail-user=lab@example.edu\n")
		assert.Contains(t, header, "export NOTE='hello world'\n")
		assert.Contains(t, header, "export SINGULARITY_BINDPATH=/data,/scratch\n")
		assert.Less(t, strings.Index(header, "export NOTE"), strings.Index(header, "export SINGULARITY_BINDPATH"))
		assert.Less(t, strings.Index(header, "#SBATCH --mail-user"), strings.Index(header, "export NOTE"))
	})

	t.Run("rejects extras that are not environment names", func(t *testing.T) {
		p := testProfile(t).WithExtra("not-a-var", "x")
		_, err := Slurm().RenderHeader(p, "job", "/logs")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidResourceProfile))
	})

	t.Run("rejects line breaks in extras values", func(t *testing.T) {
		p := testProfile(t).
			WithExtra("mail_user", "me@x.org\nrm -rf $HOME\n#SBATCH --partition=evil").
			WithExtra("NOTE", "a\rb")

		header, err := Slurm().RenderHeader(p, "job1", "/logs")
		require.Error(t, err)
		assert.Empty(t, header)

		var rpe *InvalidResourceProfileError
		require.True(t, errors.As(err, &rpe))
		assert.Len(t, rpe.Problems, 2)
		assert.Contains(t, err.Error(), `extra "mail_user" contains a line break`)
		assert.Contains(t, err.Error(), `extra "NOTE" contains a line break`)
	})

	t.Run("rejects directives that render across lines", func(t *testing.T) {
		spec := SlurmSpec()
		spec.Directives = append(spec.Directives, "--comment={{.Memory}}\n--partition=evil")
		tmpl, err := NewDirectiveTemplate(spec)
		require.NoError(t, err)

		_, err = tmpl.RenderHeader(testProfile(t), "job", "/logs")
		assert.True(t, errors.Is(err, ErrInvalidResourceProfile))
	})

	t.Run("rejects line breaks in the log directory", func(t *testing.T) {
		_, err := Slurm().RenderHeader(testProfile(t), "job", "/logs\n#SBATCH --partition=evil")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line break")
	})

	t.Run("multi-day wall time", func(t *testing.T) {
		p := testProfile(t).WithWallTime(36 * time.Hour)
		header, err := Slurm().RenderHeader(p, "job", "/logs")
		require.NoError(t, err)
		assert.Contains(t, header, "#SBATCH --time=1-12:00:00\n")
	})

	t.Run("incomplete profile", func(t *testing.T) {
		_, err := Slurm().RenderHeader(ResourceProfile{}.WithThreads(2), "job", "/logs")
		assert.True(t, errors.Is(err, ErrInvalidResourceProfile))
	})
}

func TestPBSRenderHeader(t *testing.T) {
	p := testProfile(t).WithMemory(20000).WithWallTime(30 * time.Hour).WithThreads(12).WithExtra("queue", "batch")

	header, err := PBS().RenderHeader(p, "sub-01fmriprep", "/logs")
	require.NoError(t, err)

	want := "#!/bin/bash\n" +
		"#PBS -N sub-01fmriprep\n" +
		"#PBS -o /logs/Output-sub-01fmriprep.out\n" +
		"#PBS -e /logs/Output-sub-01fmriprep.err\n" +
		"#PBS -l mem=20000mb\n" +
		"#PBS -l walltime=30:00:00\n" +
		"#PBS -l nodes=1:ppn=12\n" +
		"#PBS -q batch\n"
	assert.Equal(t, want, header)
}

func TestValidateJobName(t *testing.T) {
	slurm := Slurm()
	pbs := PBS()

	for _, ok := range []string{"sub-01fmriprep", "heudiconv_setup", "job.1"} {
		assert.NoError(t, slurm.ValidateJobName(ok), ok)
		assert.NoError(t, pbs.ValidateJobName(ok), ok)
	}

	for _, bad := range []string{"", "  ", "has space", "a/b", "..", "semi;colon"} {
		assert.Error(t, slurm.ValidateJobName(bad), bad)
	}

	assert.NoError(t, slurm.ValidateJobName("01subject"))
	assert.Error(t, pbs.ValidateJobName("01subject"), "PBS names start with a letter")
}

func TestParseSubmitResponse(t *testing.T) {
	t.Run("slurm job id", func(t *testing.T) {
		res := Slurm().ParseSubmitResponse("Submitted batch job 123456\n", "", 0)
		require.NoError(t, res.Err)
		assert.Equal(t, "123456", res.JobID)
		assert.True(t, res.Succeeded())
	})

	t.Run("non-zero exit fails even with a job id", func(t *testing.T) {
		res := Slurm().ParseSubmitResponse("Submitted batch job 1\n", "sbatch: error: something\n", 1)
		require.Error(t, res.Err)
		assert.Empty(t, res.JobID)
		assert.True(t, errors.Is(res.Err, ErrSubmission))

		var se *SubmissionError
		require.True(t, errors.As(res.Err, &se))
		assert.Equal(t, 1, se.ExitCode)
		assert.Contains(t, se.Stderr, "something")
	})

	t.Run("unparseable output", func(t *testing.T) {
		res := Slurm().ParseSubmitResponse("queued, maybe\n", "", 0)
		require.Error(t, res.Err)
		assert.True(t, errors.Is(res.Err, ErrSubmission))
		assert.False(t, res.Succeeded())
	})

	t.Run("pbs job id with server suffix", func(t *testing.T) {
		res := PBS().ParseSubmitResponse("4242.pbs-head.cluster\n", "", 0)
		require.NoError(t, res.Err)
		assert.Equal(t, "4242.pbs-head.cluster", res.JobID)
	})
}

func TestSubmitCommand(t *testing.T) {
	spec := SlurmSpec()
	spec.SubmitArgs = []string{"--parsable-off", "--export=NONE"}
	tmpl, err := NewDirectiveTemplate(spec)
	require.NoError(t, err)

	exe, args := tmpl.SubmitCommand("/logs/scripts/job.sh")
	assert.Equal(t, "sbatch", exe)
	assert.Equal(t, []string{"--parsable-off", "--export=NONE", "/logs/scripts/job.sh"}, args)

	// configured args are not aliased
	args[0] = "changed"
	_, again := tmpl.SubmitCommand("/x.sh")
	assert.Equal(t, "--parsable-off", again[0])
}

func TestNewDirectiveTemplate(t *testing.T) {
	t.Run("bad directive template", func(t *testing.T) {
		spec := SlurmSpec()
		spec.Directives = append(spec.Directives, "--bad={{.Nope")
		_, err := NewDirectiveTemplate(spec)
		assert.Error(t, err)
	})

	t.Run("job id pattern needs a group", func(t *testing.T) {
		spec := SlurmSpec()
		spec.JobIDPattern = `Submitted batch job \d+`
		_, err := NewDirectiveTemplate(spec)
		assert.Error(t, err)
	})

	t.Run("missing submit executable", func(t *testing.T) {
		spec := PBSSpec()
		spec.SubmitExecutable = ""
		_, err := NewDirectiveTemplate(spec)
		assert.Error(t, err)
	})

	t.Run("unknown field fails at render", func(t *testing.T) {
		spec := SlurmSpec()
		spec.Directives = []string{"--gres={{.GPUs}}"}
		tmpl, err := NewDirectiveTemplate(spec)
		require.NoError(t, err)
		_, err = tmpl.RenderHeader(testProfile(t), "job", "/logs")
		assert.Error(t, err)
	})

	t.Run("preset lookup", func(t *testing.T) {
		spec, ok := PresetSpec("Torque")
		require.True(t, ok)
		assert.Equal(t, "pbs", spec.Scheduler)

		_, ok = PresetSpec("lsf")
		assert.False(t, ok)
	})
}

func TestFormatTimes(t *testing.T) {
	assert.Equal(t, "01:30:00", FormatSlurmTime(90*time.Minute))
	assert.Equal(t, "2-00:00:01", FormatSlurmTime(48*time.Hour+time.Second))
	assert.Equal(t, "48:00:00", FormatHMS(48*time.Hour))
	assert.Equal(t, "00:00:01", FormatHMS(300*time.Millisecond))
	assert.Equal(t, "106751-23:47:17", FormatSlurmTime(time.Duration(math.MaxInt64)))
}
