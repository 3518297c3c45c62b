// Package commands implements the clpipe command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/clpipe/errors"
	"github.com/teranos/clpipe/logger"
)

// NewRootCmd builds the clpipe command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clpipe",
		Short: "clpipe - batch neuroimaging pipelines on Slurm and PBS clusters",
		Long: `clpipe - batch neuroimaging pipelines on Slurm and PBS clusters.

clpipe turns each pipeline step into one scheduler job per subject, writes a
batch script with the configured resource directives, and submits it.
Without --submit every command prints the scripts it would submit.

Configuration sources (later overrides earlier):
  1. Built-in defaults
  2. /etc/clpipe/config.toml
  3. ~/.clpipe/config.toml
  4. clpipe.toml in the current directory or any parent
  5. --config file (toml, json or yaml)
  6. CLPIPE_* environment variables (CLPIPE_BATCH_SCHEDULER, ...)

Examples:
  clpipe fmriprep 01 02            # print the fmriprep scripts for two subjects
  clpipe fmriprep --submit         # submit every sub-* in the BIDS directory
  clpipe submit jobs.toml --submit # submit a job manifest
  clpipe runs                      # list previous submissions`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbosity, _ := cmd.Flags().GetCount("verbose")
			if debug, _ := cmd.Flags().GetBool("debug"); debug && verbosity < logger.VerbosityDebug {
				verbosity = logger.VerbosityDebug
			}
			jsonLogs, _ := cmd.Flags().GetBool("json-logs")
			if err := logger.Initialize(jsonLogs, verbosity); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "Config file (toml, json or yaml) layered over the cascade")
	flags.CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	flags.Bool("debug", false, "Debug logging, same as -vv")
	flags.Bool("json", false, "Print command output as JSON")
	flags.Bool("json-logs", false, "Write logs as JSON")

	root.AddCommand(
		newFMRIPrepCmd(),
		newBIDSSetupCmd(),
		newSubmitCmd(),
		newConfigCmd(),
		newRunsCmd(),
		newVersionCmd(),
	)
	return root
}
