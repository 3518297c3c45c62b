package commands

import (
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/config"
	"github.com/teranos/clpipe/errors"
	"github.com/teranos/clpipe/pipeline"
)

// FMRIPrepConfigDumpName is written into the output directory on submit.
const FMRIPrepConfigDumpName = "clpipe_config.toml"

func newFMRIPrepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fmriprep [subject...]",
		Short: "Run fmriprep on BIDS subjects, one job per subject",
		Long: `Build one fmriprep job per subject and print or submit the batch scripts.

Subjects may be given with or without the "sub-" prefix. With no subjects,
every sub-* directory of the BIDS dataset is processed.

Resources come from [batch] defaults, overridden by the memory, time and
threads of [fmriprep]. Scheduler logs go to <output>/batchOutput unless
--log-dir or fmriprep.log_directory is set.

Examples:
  clpipe fmriprep 01 02
  clpipe fmriprep --bids-dir /study/bids --output-dir /study/derivatives --submit`,
		RunE: runFMRIPrep,
	}
	cmd.Flags().String("bids-dir", "", "BIDS dataset root (overrides fmriprep.bids_directory)")
	cmd.Flags().String("working-dir", "", "fmriprep working directory (overrides fmriprep.working_directory)")
	cmd.Flags().String("output-dir", "", "Derivatives directory (overrides fmriprep.output_directory)")
	cmd.Flags().String("log-dir", "", "Scheduler log directory")
	cmd.Flags().BoolP("submit", "s", false, "Submit the jobs instead of printing them")
	return cmd
}

func runFMRIPrep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fc := &cfg.FMRIPrep
	overrideString(cmd, "bids-dir", &fc.BIDSDirectory)
	overrideString(cmd, "working-dir", &fc.WorkingDirectory)
	overrideString(cmd, "output-dir", &fc.OutputDirectory)
	overrideString(cmd, "log-dir", &fc.LogDirectory)
	if err := fc.RequireDirectories(); err != nil {
		return err
	}

	bidsDir := config.ExpandPath(fc.BIDSDirectory)
	outputDir := config.ExpandPath(fc.OutputDirectory)

	subjects := pipeline.NormalizeSubjects(args)
	if len(subjects) == 0 {
		subjects, err = pipeline.DiscoverSubjects(afero.NewOsFs(), bidsDir)
		if err != nil {
			return err
		}
	}

	logDir := config.ExpandPath(fc.LogDirectory)
	if logDir == "" {
		logDir = filepath.Join(outputDir, "batchOutput")
	}

	override, err := fc.ResourceOverride()
	if err != nil {
		return err
	}

	submit, _ := cmd.Flags().GetBool("submit")
	return runBatch(cmd, cfg, batchRun{
		step:     "fmriprep",
		subjects: subjects,
		logDir:   logDir,
		override: override,
		submit:   submit,
		dumpPath: filepath.Join(outputDir, FMRIPrepConfigDumpName),
		jobs: func(m *batch.Manager) ([]batch.Job, error) {
			threads := m.ResourceDefault().Threads
			if threads == nil {
				return nil, errors.NewInvalidConfigError("no thread count configured")
			}
			return pipeline.FMRIPrepJobs(pipeline.FMRIPrepParams{
				ImagePath:             config.ExpandPath(fc.ImagePath),
				BIDSDirectory:         bidsDir,
				OutputDirectory:       outputDir,
				WorkingDirectory:      config.ExpandPath(fc.WorkingDirectory),
				FreesurferLicensePath: config.ExpandPath(fc.FreesurferLicensePath),
				BindPaths:             cfg.Batch.SingularityBindPaths,
				Threads:               *threads,
			}, subjects)
		},
	})
}

// overrideString replaces *dst with a flag value the user actually passed.
func overrideString(cmd *cobra.Command, flag string, dst *string) {
	if cmd.Flags().Changed(flag) {
		*dst, _ = cmd.Flags().GetString(flag)
	}
}
