package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/config"
	"github.com/teranos/clpipe/errors"
	"github.com/teranos/clpipe/pipeline"
)

func newBIDSSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bids-setup",
		Short: "Extract the DICOM info table for writing a heudiconv heuristic",
		Long: `Submit one heudiconv job that scans a single subject's DICOMs and copies
the resulting dicominfo.tsv to the output file. Use the table to write the
conversion heuristic before running the full BIDS conversion.

The DICOM directory is a heudiconv -d template and may contain {subject}
and {session} placeholders.

Example:
  clpipe bids-setup --dicom-dir '/raw/{subject}/*/*.dcm' --subject 001 --submit`,
		Args: cobra.NoArgs,
		RunE: runBIDSSetup,
	}
	cmd.Flags().String("dicom-dir", "", "heudiconv -d template for the DICOM files (required)")
	cmd.Flags().String("subject", "", "Subject to scan (required)")
	cmd.Flags().String("session", "", "Session to scan")
	cmd.Flags().String("heuristic", "", "Setup heuristic file (overrides heudiconv.heuristic_file)")
	cmd.Flags().String("output-file", "", "Where to copy dicominfo.tsv (overrides heudiconv.output_file)")
	cmd.Flags().String("log-dir", "", "Scheduler log directory")
	cmd.Flags().BoolP("submit", "s", false, "Submit the job instead of printing it")
	_ = cmd.MarkFlagRequired("dicom-dir")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runBIDSSetup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	hc := &cfg.Heudiconv
	overrideString(cmd, "heuristic", &hc.HeuristicFile)
	overrideString(cmd, "output-file", &hc.OutputFile)
	overrideString(cmd, "log-dir", &hc.LogDirectory)
	if hc.HeuristicFile == "" {
		return errors.WithHint(
			errors.NewInvalidConfigError("no heuristic file"),
			"pass --heuristic or set heudiconv.heuristic_file")
	}

	dicomDir, _ := cmd.Flags().GetString("dicom-dir")
	subject, _ := cmd.Flags().GetString("subject")
	session, _ := cmd.Flags().GetString("session")
	outputFile, err := filepath.Abs(config.ExpandPath(hc.OutputFile))
	if err != nil {
		return errors.Wrap(err, "resolve output file")
	}
	scratch, err := filepath.Abs(config.ExpandPath(hc.ScratchDir))
	if err != nil {
		return errors.Wrap(err, "resolve scratch directory")
	}

	logDir := config.ExpandPath(hc.LogDirectory)
	if logDir == "" {
		logDir = filepath.Join(filepath.Dir(outputFile), "batchOutput")
	}

	submit, _ := cmd.Flags().GetBool("submit")
	return runBatch(cmd, cfg, batchRun{
		step:     "bids-setup",
		subjects: []string{subject},
		logDir:   logDir,
		submit:   submit,
		jobs: func(*batch.Manager) ([]batch.Job, error) {
			body, err := pipeline.HeudiconvSetupBody(pipeline.HeudiconvParams{
				DICOMDirectory: dicomDir,
				Subject:        subject,
				Session:        session,
				HeuristicFile:  config.ExpandPath(hc.HeuristicFile),
				OutputFile:     outputFile,
				ScratchDir:     scratch,
				Module:         hc.Module,
			})
			if err != nil {
				return nil, err
			}
			return []batch.Job{batch.NewJob(pipeline.HeudiconvSetupJobName, body)}, nil
		},
	})
}
