package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/config"
	"github.com/teranos/clpipe/manifest"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <manifest.toml>",
		Short: "Submit the jobs listed in a TOML manifest",
		Long: `Compile every [[job]] of a manifest against the configured scheduler and
print or submit the scripts. A [defaults] table overrides the [batch]
defaults for this manifest; per-job memory, time, threads and extras
override both.

Example manifest:
  [[job]]
  name = "prep-01"
  body = "python prep.py --subject 01"
  time = "2:00:00"`,
		Args: cobra.ExactArgs(1),
		RunE: runSubmit,
	}
	cmd.Flags().String("log-dir", "", "Scheduler log directory (default: batchOutput next to the manifest)")
	cmd.Flags().BoolP("submit", "s", false, "Submit the jobs instead of printing them")
	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}
	override, err := m.DefaultOverride()
	if err != nil {
		return err
	}

	logDir, _ := cmd.Flags().GetString("log-dir")
	if logDir == "" {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		logDir = filepath.Join(filepath.Dir(abs), "batchOutput")
	}

	submit, _ := cmd.Flags().GetBool("submit")
	return runBatch(cmd, cfg, batchRun{
		step:     "submit",
		logDir:   config.ExpandPath(logDir),
		override: override,
		submit:   submit,
		jobs: func(*batch.Manager) ([]batch.Job, error) {
			return m.Jobs()
		},
	})
}
