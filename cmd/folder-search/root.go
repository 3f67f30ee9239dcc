package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/0xmhha/folder-search/pkg/config"
	"github.com/0xmhha/folder-search/pkg/coordinator"
	"github.com/0xmhha/folder-search/pkg/display"
	"github.com/0xmhha/folder-search/pkg/history"
	"github.com/0xmhha/folder-search/pkg/logger"
)

// app holds the global flags shared by every command.
type app struct {
	configPath string
	format     string
	compact    bool
	noColor    bool
	absolute   bool
	verbose    bool
}

// newRootCommand creates the root command with all subcommands attached.
func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "folder-search",
		Short: "Find directories by name across search roots",
		Long: `folder-search keeps a catalog of every directory below a set of
search roots and answers name queries from it in milliseconds.

Roots are crawled once, then patched by a filesystem watcher. A root
without a catalog is searched by a bounded live walk instead.`,
		Version: version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to configuration file")
	flags.StringVar(&a.format, "format", "", "output format (table, json, simple)")
	flags.BoolVar(&a.compact, "compact", false, "compact output")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	flags.BoolVar(&a.absolute, "absolute", false, "show absolute paths")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug messages")

	cmd.AddCommand(newSearchCommand(a))
	cmd.AddCommand(newRebuildCommand(a))
	cmd.AddCommand(newRootsCommand(a))
	cmd.AddCommand(newWatchCommand(a))
	cmd.AddCommand(newHistoryCommand(a))
	cmd.AddCommand(newConfigCommand(a))

	return cmd
}

// loadConfig loads the engine configuration.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(a.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger creates the logger configured in cfg.
func (a *app) newLogger(cfg *config.Config) logger.Logger {
	lc := logger.Config{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
	}
	if a.verbose {
		lc.Level = "debug"
	}
	return logger.New(lc)
}

// open starts an engine on the configured roots. Watchers run only when
// watch is set and the configuration enables them.
func (a *app) open(ctx context.Context, watch bool) (*coordinator.Coordinator, *config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	ccfg := coordinator.ConfigFrom(cfg)
	ccfg.Watch = watch && cfg.Watch.Enabled

	c, err := coordinator.New(ccfg, a.newLogger(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start engine: %w", err)
	}

	specs, err := coordinator.LoadRootSpecs(ccfg.WorkDir)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("failed to load roots: %w", err)
	}
	if err := c.ConfigureRoots(ctx, specs); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("failed to configure roots: %w", err)
	}

	return c, cfg, nil
}

// formatter creates the formatter for output written to w.
func (a *app) formatter(cfg *config.Config, w io.Writer) (display.Formatter, error) {
	name := a.format
	if name == "" {
		name = cfg.Display.DefaultMode
	}
	format, err := display.ParseFormat(name)
	if err != nil {
		return nil, err
	}

	return display.New(display.Config{
		Format:       format,
		ColorEnabled: cfg.Display.ColorEnabled && !a.noColor && isTerminal(w),
		ShowAbsolute: a.absolute,
		Compact:      a.compact,
	}), nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progress rewrites a single status line on a terminal. It is silent
// when the writer is not a terminal.
type progress struct {
	w     io.Writer
	on    bool
	width int
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w, on: isTerminal(w)}
}

// printf replaces the status line.
func (p *progress) printf(format string, args ...interface{}) {
	if !p.on {
		return
	}
	line := fmt.Sprintf(format, args...)
	pad := max(0, p.width-len(line))
	fmt.Fprintf(p.w, "\r%s%s", line, strings.Repeat(" ", pad))
	p.width = len(line)
}

// clear erases the status line.
func (p *progress) clear() {
	if !p.on || p.width == 0 {
		return
	}
	fmt.Fprintf(p.w, "\r%s\r", strings.Repeat(" ", p.width))
	p.width = 0
}

// openHistory opens the search history without starting an engine.
func (a *app) openHistory() (*history.Log, *config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	h, err := history.New(cfg.WorkDir, a.newLogger(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	return h, cfg, nil
}
