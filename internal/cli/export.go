package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/depstack/depstack/pkg/npm/snapshot"
	"github.com/depstack/depstack/pkg/render"
)

// exportCommand creates the export command for rendering lockfiles.
func (c *CLI) exportCommand() *cobra.Command {
	var (
		format   string
		output   string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "export [lockfile]",
		Short: "Render a lockfile's dependency graph as DOT or SVG",
		Long: `Render the dependency graph of a lockfile.

The export command reads a lockfile (produced by 'resolve') and emits the
graph in Graphviz DOT format, or renders it to SVG directly. Output goes
to stdout unless --output is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "depstack.lock"
			if len(args) > 0 {
				input = args[0]
			}
			return c.runExport(input, strings.ToLower(format), output, detailed)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format: dot (default), svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include copy indices and peer identities in labels")

	return cmd
}

// runExport loads the lockfile and renders it.
func (c *CLI) runExport(input, format, output string, detailed bool) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read lockfile %s: %w", input, err)
	}
	snap, err := snapshot.ParseLockfile(data)
	if err != nil {
		return fmt.Errorf("parse lockfile %s: %w", input, err)
	}

	dot := render.ToDOT(snap, render.Options{Detailed: detailed})

	var out []byte
	switch format {
	case "dot":
		out = []byte(dot)
	case "svg":
		out, err = render.RenderSVG(dot)
		if err != nil {
			return fmt.Errorf("render SVG: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q (expected dot or svg)", format)
	}

	if output == "" {
		_, err := os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(output, out, 0o644); err != nil {
		return err
	}
	printSuccess("Exported %d packages", len(snap.Packages))
	printFile(output)
	return nil
}
