package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/clpipe/config"
	"github.com/teranos/clpipe/display"
	"github.com/teranos/clpipe/errors"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, validate and dump the clpipe configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration",
		RunE:  runConfigShow,
	}
	show.Flags().String("format", "toml", "Output format: toml, json, yaml")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the merged configuration",
		RunE:  runConfigValidate,
	}

	dump := &cobra.Command{
		Use:   "dump <path>",
		Short: "Write the merged configuration as TOML, stamped with the current time",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigDump,
	}

	where := &cobra.Command{
		Use:   "where",
		Short: "List the config files in the cascade and which exist",
		RunE:  runConfigWhere,
	}

	cmd.AddCommand(show, validate, dump, where)
	return cmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(explicit)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if display.ShouldOutputJSON(cmd) {
		format = "json"
	}
	data, err := config.Render(cfg, format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration is valid (scheduler %s)\n", cfg.Batch.Scheduler)
	return nil
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Dump(cfg.Config, args[0], now()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	explicit, _ := cmd.Flags().GetString("config")
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  [DEFAULT]  built-in defaults")
	for _, path := range config.ConfigPaths(explicit) {
		state := "missing"
		if _, err := os.Stat(path); err == nil {
			state = "loaded"
		}
		fmt.Fprintf(out, "  [%-7s]  %s\n", state, path)
	}
	fmt.Fprintf(out, "  [ENV]      %s_* environment variables\n", config.EnvPrefix)
	return nil
}
