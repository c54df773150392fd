// Package cli implements the depstack command-line interface.
//
// This package provides commands for resolving npm dependency trees into
// lockfiles, exporting resolved graphs as DOT or SVG, browsing lockfiles
// interactively, managing the registry response cache, and running the
// lockfile server. The CLI is built using cobra and supports verbose
// logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - resolve: Resolve package requirements into a lockfile
//   - export: Render a lockfile's dependency graph as DOT or SVG
//   - inspect: Browse a lockfile interactively
//   - cache: Manage the registry response cache
//   - serve: Run the HTTP resolution and lockfile server
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context to allow structured progress tracking.
package cli

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/depstack/depstack/pkg/buildinfo"
	"github.com/depstack/depstack/pkg/httputil"
	"github.com/depstack/depstack/pkg/npm/registry"
)

// appName is the application name used for directories and display.
const appName = "depstack"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config Config
}

// New creates a new CLI instance with a default logger and configuration
// loaded from the default path.
func New(w io.Writer, level log.Level) *CLI {
	c := &CLI{Logger: newLogger(w, level)}
	cfg, err := LoadConfig("")
	if err != nil {
		c.Logger.Warn("ignoring config file", "err", err)
		cfg = DefaultConfig()
	}
	c.Config = cfg
	return c
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "depstack",
		Short:        "Depstack resolves npm dependency graphs into lockfiles",
		Long:         `Depstack is a CLI tool for resolving npm package requirements into deterministic, peer-dependency-aware lockfiles, and for inspecting and serving the resulting dependency graphs.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// newRegistryClient creates a registry client honoring the configuration
// and the --no-cache flag.
func (c *CLI) newRegistryClient(registryURL string, noCache bool) (*registry.Client, error) {
	opts := []registry.ClientOption{}
	if registryURL == "" {
		registryURL = c.Config.RegistryURL
	}
	if registryURL != "" {
		opts = append(opts, registry.WithBaseURL(registryURL))
	}
	if !noCache {
		dir, err := cacheDir()
		if err == nil {
			httpCache, err := httputil.NewCache(dir, time.Duration(c.Config.CacheTTL))
			if err != nil {
				return nil, err
			}
			opts = append(opts, registry.WithCache(httpCache))
		}
	}
	return registry.NewClient(opts...), nil
}

// cacheDir returns the cache directory using XDG standard (~/.cache/depstack/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
