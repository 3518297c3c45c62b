package pipeline

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/clpipe/errors"
)

func testParams() FMRIPrepParams {
	return FMRIPrepParams{
		ImagePath:             "/images/fmriprep-20.2.sif",
		BIDSDirectory:         "/study/bids",
		OutputDirectory:       "/study/derivatives",
		WorkingDirectory:      "/scratch/work",
		FreesurferLicensePath: "/opt/fs/license.txt",
		BindPaths:             "/study,/scratch",
		Threads:               12,
	}
}

func TestFMRIPrepBody(t *testing.T) {
	t.Run("renders the singularity command", func(t *testing.T) {
		body, err := FMRIPrepBody(testParams(), "01")
		require.NoError(t, err)

		want := "unset PYTHONPATH; singularity run -B /study,/scratch -e --no-home " +
			"/images/fmriprep-20.2.sif /study/bids /study/derivatives participant " +
			"--participant-label 01 -w /scratch/work --fs-license-file /opt/fs/license.txt --nthreads 12"
		assert.Equal(t, want, body)
	})

	t.Run("omits bind paths when unset", func(t *testing.T) {
		p := testParams()
		p.BindPaths = ""
		body, err := FMRIPrepBody(p, "01")
		require.NoError(t, err)
		assert.NotContains(t, body, " -B ")
	})

	t.Run("quotes paths with spaces", func(t *testing.T) {
		p := testParams()
		p.BIDSDirectory = "/study/my bids"
		body, err := FMRIPrepBody(p, "01")
		require.NoError(t, err)
		assert.Contains(t, body, "'/study/my bids'")
	})

	t.Run("reports missing fields", func(t *testing.T) {
		_, err := FMRIPrepBody(FMRIPrepParams{Threads: 1}, "01")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
		assert.Contains(t, err.Error(), "image path")
		assert.Contains(t, err.Error(), "FreeSurfer license path")
	})

	t.Run("rejects zero threads", func(t *testing.T) {
		p := testParams()
		p.Threads = 0
		_, err := FMRIPrepBody(p, "01")
		assert.Error(t, err)
	})
}

func TestFMRIPrepJobs(t *testing.T) {
	jobs, err := FMRIPrepJobs(testParams(), []string{"02", "01"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "sub-02fmriprep", jobs[0].Name())
	assert.Equal(t, "sub-01fmriprep", jobs[1].Name())
	assert.Contains(t, jobs[1].Body(), "--participant-label 01")

	_, hasOverride := jobs[0].Resources()
	assert.False(t, hasOverride)
}

func TestNormalizeSubjects(t *testing.T) {
	assert.Equal(t, []string{"01", "02"}, NormalizeSubjects([]string{"sub-01", "02", " 01 ", ""}))
}

func TestDiscoverSubjects(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, dir := range []string{"sub-10", "sub-02", "derivatives", "sub-01"} {
		require.NoError(t, fs.MkdirAll("/bids/"+dir, 0755))
	}
	require.NoError(t, afero.WriteFile(fs, "/bids/sub-99", []byte("not a dir"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/bids/participants.tsv", nil, 0644))

	subjects, err := DiscoverSubjects(fs, "/bids")
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02", "10"}, subjects)

	t.Run("empty dataset", func(t *testing.T) {
		require.NoError(t, fs.MkdirAll("/empty", 0755))
		_, err := DiscoverSubjects(fs, "/empty")
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := DiscoverSubjects(fs, "/nope")
		assert.Error(t, err)
	})
}

func TestHeudiconvSetupBody(t *testing.T) {
	p := HeudiconvParams{
		DICOMDirectory: "/dicom/{subject}/*/*.dcm",
		Subject:        "001",
		HeuristicFile:  "/opt/clpipe/setup_heuristic.py",
		OutputFile:     "/study/dicom_info.tsv",
		ScratchDir:     "/scratch/heudiconv_setup",
		Module:         "heudiconv",
	}

	t.Run("without session", func(t *testing.T) {
		body, err := HeudiconvSetupBody(p)
		require.NoError(t, err)

		lines := strings.Split(body, "\n")
		require.Len(t, lines, 4)
		assert.Equal(t, "module add heudiconv", lines[0])
		assert.Contains(t, lines[1], "heudiconv -d ")
		assert.Contains(t, lines[1], "-s 001 -f /opt/clpipe/setup_heuristic.py -o /scratch/heudiconv_setup -b --minmeta")
		assert.NotContains(t, lines[1], "-ss")
		assert.Equal(t, "cp /scratch/heudiconv_setup/.heudiconv/001/info/dicominfo.tsv /study/dicom_info.tsv", lines[2])
		assert.Equal(t, "rm -rf /scratch/heudiconv_setup", lines[3])
	})

	t.Run("with session", func(t *testing.T) {
		sp := p
		sp.Session = "pre"
		sp.Module = ""
		body, err := HeudiconvSetupBody(sp)
		require.NoError(t, err)

		lines := strings.Split(body, "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "-s 001 -ss pre -f")
		assert.Contains(t, lines[1], "/.heudiconv/001/ses-pre/info/dicominfo_ses-pre.tsv")
	})

	t.Run("dicom template is quoted", func(t *testing.T) {
		body, err := HeudiconvSetupBody(p)
		require.NoError(t, err)
		assert.NotContains(t, body, "-d /dicom/{subject}/*/*.dcm ")
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := HeudiconvSetupBody(HeudiconvParams{Subject: "001"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "heuristic file")
	})
}
