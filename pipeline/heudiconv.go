package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/clpipe/errors"
)

// HeudiconvSetupJobName names the single bids-setup job.
const HeudiconvSetupJobName = "heudiconv_setup"

// HeudiconvParams drives a heudiconv dry pass that extracts the DICOM info table.
type HeudiconvParams struct {
	DICOMDirectory string
	Subject        string
	Session        string // optional
	HeuristicFile  string
	OutputFile     string
	ScratchDir     string
	Module         string // environment module to load first, optional
}

// HeudiconvSetupBody runs heudiconv on one subject, copies the dicominfo table
// to OutputFile, then removes the scratch output.
func HeudiconvSetupBody(p HeudiconvParams) (string, error) {
	var missing []string
	if p.DICOMDirectory == "" {
		missing = append(missing, "DICOM directory")
	}
	if p.Subject == "" {
		missing = append(missing, "subject")
	}
	if p.HeuristicFile == "" {
		missing = append(missing, "heuristic file")
	}
	if p.OutputFile == "" {
		missing = append(missing, "output file")
	}
	if p.ScratchDir == "" {
		missing = append(missing, "scratch directory")
	}
	if len(missing) > 0 {
		return "", errors.NewInvalidRequestError("heudiconv: missing %s", strings.Join(missing, ", "))
	}

	run := []string{"heudiconv", "-d", p.DICOMDirectory, "-s", p.Subject}
	if p.Session != "" {
		run = append(run, "-ss", p.Session)
	}
	run = append(run, "-f", p.HeuristicFile, "-o", p.ScratchDir, "-b", "--minmeta")

	info := filepath.Join(p.ScratchDir, ".heudiconv", p.Subject, "info", "dicominfo.tsv")
	if p.Session != "" {
		info = filepath.Join(p.ScratchDir, ".heudiconv", p.Subject, "ses-"+p.Session, "info",
			"dicominfo_ses-"+p.Session+".tsv")
	}

	var lines []string
	if p.Module != "" {
		lines = append(lines, shellquote.Join("module", "add", p.Module))
	}
	lines = append(lines,
		shellquote.Join(run...),
		shellquote.Join("cp", info, p.OutputFile),
		shellquote.Join("rm", "-rf", p.ScratchDir),
	)
	return strings.Join(lines, "\n"), nil
}
