package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xmhha/folder-search/pkg/coordinator"
	"github.com/0xmhha/folder-search/pkg/pathstore"
)

// newRootsCommand creates the roots command and its subcommands.
func newRootsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roots",
		Short: "Manage search roots",
	}

	cmd.AddCommand(newRootsListCommand(a))
	cmd.AddCommand(newRootsAddCommand(a))
	cmd.AddCommand(newRootsRemoveCommand(a))
	cmd.AddCommand(newRootsToggleCommand(a, "enable", "Include a root in searches", true))
	cmd.AddCommand(newRootsToggleCommand(a, "disable", "Exclude a root from searches", false))

	return cmd
}

func newRootsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List search roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			f, err := a.formatter(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return f.FormatRoots(cmd.OutOrStdout(), c.Roots())
		},
	}
}

func newRootsAddCommand(a *app) *cobra.Command {
	var (
		name    string
		primary bool
		noScan  bool
	)

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a search root and catalog it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathstore.Normalize(args[0])
			if err != nil {
				return fmt.Errorf("invalid root %q: %w", args[0], err)
			}

			c, _, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			specs := currentSpecs(c)
			for _, s := range specs {
				if s.Path == path {
					return fmt.Errorf("root already configured: %s", path)
				}
			}
			if primary {
				for i := range specs {
					specs[i].Primary = false
				}
			}
			specs = append(specs, coordinator.RootSpec{Path: path, Name: name, Enabled: true, Primary: primary})

			if err := c.ConfigureRoots(cmd.Context(), specs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", path)

			if noScan {
				return nil
			}
			return rebuildRoot(cmd.Context(), cmd, c, path)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "label shown with the root's results")
	cmd.Flags().BoolVar(&primary, "primary", false, "make this the primary root")
	cmd.Flags().BoolVar(&noScan, "no-scan", false, "do not catalog the root now")

	return cmd
}

func newRootsRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>",
		Short: "Remove a search root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateRoot(cmd, a, args[0], func(specs []coordinator.RootSpec, i int) []coordinator.RootSpec {
				return append(specs[:i], specs[i+1:]...)
			}, "Removed")
		},
	}
}

func newRootsToggleCommand(a *app, verb, short string, enabled bool) *cobra.Command {
	done := "Enabled"
	if !enabled {
		done = "Disabled"
	}

	return &cobra.Command{
		Use:   verb + " <path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateRoot(cmd, a, args[0], func(specs []coordinator.RootSpec, i int) []coordinator.RootSpec {
				specs[i].Enabled = enabled
				return specs
			}, done)
		},
	}
}

// updateRoot applies edit to the configured root at path and saves the result.
func updateRoot(cmd *cobra.Command, a *app, arg string, edit func([]coordinator.RootSpec, int) []coordinator.RootSpec, done string) error {
	path, err := pathstore.Normalize(arg)
	if err != nil {
		return fmt.Errorf("invalid root %q: %w", arg, err)
	}

	c, _, err := a.open(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer c.Close()

	specs := currentSpecs(c)
	for i, s := range specs {
		if s.Path != path {
			continue
		}
		if err := c.ConfigureRoots(cmd.Context(), edit(specs, i)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, path)
		return nil
	}
	return fmt.Errorf("%w: %s", coordinator.ErrUnknownRoot, path)
}

// currentSpecs returns the configuration of the roots c is serving.
func currentSpecs(c *coordinator.Coordinator) []coordinator.RootSpec {
	roots := c.Roots()
	specs := make([]coordinator.RootSpec, len(roots))
	for i, r := range roots {
		specs[i] = coordinator.RootSpec{Path: r.Path, Name: r.Name, Enabled: r.Enabled, Primary: r.Primary}
	}
	return specs
}
