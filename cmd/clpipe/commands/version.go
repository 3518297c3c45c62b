package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/clpipe/display"
	"github.com/teranos/clpipe/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show clpipe version information",
		Long:  `Display version, build time, commit hash, and platform information for the clpipe binary.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if display.ShouldOutputJSON(cmd) {
				return display.OutputJSON(cmd.OutOrStdout(), info)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
}
