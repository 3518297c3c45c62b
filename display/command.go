// Package display renders clpipe command output: pterm tables for people,
// indented JSON for scripts.
package display

import (
	"github.com/spf13/cobra"

	"github.com/teranos/clpipe/logger"
)

// ShouldOutputJSON reports whether a command should print JSON: an explicit
// --json flag wins, otherwise JSON is used inside a scheduler allocation where
// output lands in a log file.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return logger.InsideSchedulerJob()
	}

	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool("json")
		return v
	}

	if f := cmd.Root().PersistentFlags().Lookup("json"); f != nil && f.Changed {
		v, _ := cmd.Root().PersistentFlags().GetBool("json")
		return v
	}

	return logger.InsideSchedulerJob()
}
