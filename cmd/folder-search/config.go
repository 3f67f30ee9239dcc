package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/folder-search/pkg/config"
)

// newConfigCommand creates the config command and its subcommands.
func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Display the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return showJSON(cmd.OutOrStdout(), cfg)
			case "yaml", "":
				return showYAML(cmd.OutOrStdout(), cfg, a.configSource())
			default:
				return fmt.Errorf("unknown config format: %s", format)
			}
		},
	}
	show.Flags().StringVar(&format, "output", "yaml", "output format (yaml, json)")

	path := &cobra.Command{
		Use:   "path",
		Short: "Show the configuration file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.configSource())
			return nil
		},
	}

	cmd.AddCommand(show, path)
	return cmd
}

// configSource describes where the configuration comes from.
func (a *app) configSource() string {
	if p := config.Path(a.configPath); p != "" {
		return p
	}
	return "defaults (no config file found)"
}

// showYAML displays configuration in YAML format.
func showYAML(w io.Writer, cfg *config.Config, source string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Fprintln(w, "# Current Configuration")
	fmt.Fprintln(w, "# Source:", source)
	fmt.Fprintln(w)
	_, err = w.Write(data)
	return err
}

// showJSON displays configuration in JSON format.
func showJSON(w io.Writer, cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))
	return err
}
