package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/graph"
	"github.com/depstack/depstack/pkg/npm/snapshot"
)

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		output      string
		registryURL string
		dedup       bool
		update      bool
		noCache     bool
	)
	dedup = c.Config.Dedup

	cmd := &cobra.Command{
		Use:   "resolve <package@range>...",
		Short: "Resolve package requirements into a lockfile",
		Long: `Resolve npm package requirements into a deterministic lockfile.

Each argument is a package requirement like react@^18 or lodash@4.17.21.
When the output lockfile already exists, its pinned versions are reused
wherever they still satisfy the requirements; pass --update to resolve
everything fresh.

Peer dependencies are resolved against ancestors in the dependency tree,
creating per-peer package copies where needed. Requirements whose peer
range cannot be met are reported as warnings, matching npm's behavior of
installing anyway.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]npm.PackageReq, len(args))
			for i, arg := range args {
				req, err := npm.ParsePackageReq(arg)
				if err != nil {
					return err
				}
				reqs[i] = req
			}
			return c.runResolve(cmd.Context(), reqs, resolveParams{
				output:      output,
				registryURL: registryURL,
				dedup:       dedup,
				update:      update,
				noCache:     noCache,
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "depstack.lock", "lockfile path")
	cmd.Flags().StringVar(&registryURL, "registry", "", "npm registry URL")
	cmd.Flags().BoolVar(&dedup, "dedup", dedup, "consolidate duplicate versions where ranges allow")
	cmd.Flags().BoolVar(&update, "update", false, "ignore the existing lockfile and resolve fresh")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the registry response cache")

	return cmd
}

type resolveParams struct {
	output      string
	registryURL string
	dedup       bool
	update      bool
	noCache     bool
}

// runResolve performs the resolution and writes the lockfile.
func (c *CLI) runResolve(ctx context.Context, reqs []npm.PackageReq, params resolveParams) error {
	client, err := c.newRegistryClient(params.registryURL, params.noCache)
	if err != nil {
		return fmt.Errorf("initialize registry client: %w", err)
	}

	var previous *snapshot.Snapshot
	if !params.update {
		data, err := os.ReadFile(params.output)
		if err == nil {
			previous, err = snapshot.ParseLockfile(data)
			if err != nil {
				return fmt.Errorf("parse existing lockfile %s: %w", params.output, err)
			}
			c.Logger.Debug("reusing existing lockfile", "path", params.output)
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	var opts []graph.ResolverOption
	if params.dedup {
		opts = append(opts, graph.WithDedup())
	}

	spinner := newSpinnerWithContext(ctx, "Resolving dependencies...")
	spinner.Start()

	prog := newProgress(c.Logger)
	snap, diagnostics, err := graph.ResolveWithSnapshot(ctx, client, previous, reqs, opts...)
	if err != nil {
		spinner.StopWithError("Resolution failed")
		return err
	}
	spinner.Stop()
	prog.done(fmt.Sprintf("Resolved %d packages", len(snap.Packages)))

	for _, diag := range diagnostics {
		printWarning("unmet peer dependency: %s resolved to %s", diag.Dependency, diag.Resolved)
		for _, ancestor := range diag.Ancestors {
			printDetail("via %s", ancestor)
		}
	}

	data, err := snap.MarshalLockfile()
	if err != nil {
		return err
	}
	if err := os.WriteFile(params.output, data, 0o644); err != nil {
		return err
	}

	printSuccess("Wrote %s", params.output)
	printStats(len(snap.Packages), countEdges(snap), false)
	printNextStep("Visualize the graph", fmt.Sprintf("depstack export %s --format svg", params.output))
	return nil
}

func countEdges(snap *snapshot.Snapshot) int {
	edges := 0
	for _, pkg := range snap.Packages {
		edges += len(pkg.Dependencies)
	}
	return edges
}
