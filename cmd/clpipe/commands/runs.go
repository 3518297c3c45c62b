package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/clpipe/config"
	"github.com/teranos/clpipe/display"
	"github.com/teranos/clpipe/errors"
	"github.com/teranos/clpipe/logger"
	"github.com/teranos/clpipe/runlog"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List submitted batches from the run log",
		Long: `List the batches clpipe has submitted, newest first, with how many jobs
the scheduler accepted.

Examples:
  clpipe runs
  clpipe runs --limit 50
  clpipe runs show 0f8fad5b-d9cb-469f-a165-70867728950e`,
		Args: cobra.NoArgs,
		RunE: runRunsList,
	}
	cmd.Flags().Int("limit", runlog.DefaultListLimit, "Maximum number of runs to display")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the jobs of one run",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow,
	}
	cmd.AddCommand(show)
	return cmd
}

func openRunLog(cmd *cobra.Command) (*runlog.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !cfg.RunLog.Enabled {
		return nil, errors.WithHint(
			errors.NewInvalidConfigError("the run log is disabled"),
			"set runlog.enabled = true in clpipe.toml")
	}
	return runlog.Open(config.ExpandPath(cfg.RunLog.Path), logger.ComponentLogger("runlog"))
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := openRunLog(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), runs)
	}
	return display.RunsTable(cmd.OutOrStdout(), runs)
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openRunLog(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	jobs, err := store.Jobs(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), jobs)
	}
	return display.JobsTable(cmd.OutOrStdout(), jobs)
}
