package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/depstack/depstack/pkg/npm/snapshot"
)

// Options configures dependency graph rendering.
type Options struct {
	// Detailed includes copy indices, peer identities, and deprecation
	// notices in node labels. When false, only name@version is shown.
	Detailed bool
}

// ToDOT converts a resolved snapshot to Graphviz DOT format. The resulting
// DOT string can be rendered with [RenderSVG].
func ToDOT(snap *snapshot.Snapshot, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph dependencies {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	roots := make(map[string]struct{}, len(snap.RootPackages))
	for _, id := range snap.RootPackages {
		roots[id.String()] = struct{}{}
	}

	ids := make([]string, 0, len(snap.Packages))
	for id := range snap.Packages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		pkg := snap.Packages[id]
		_, isRoot := roots[id]
		label := fmtLabel(pkg, opts.Detailed)
		attrs := fmtAttrs(pkg, label, isRoot)
		fmt.Fprintf(&buf, "  %q [%s];\n", id, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, id := range ids {
		pkg := snap.Packages[id]
		specifiers := make([]string, 0, len(pkg.Dependencies))
		for specifier := range pkg.Dependencies {
			specifiers = append(specifiers, specifier)
		}
		sort.Strings(specifiers)
		for _, specifier := range specifiers {
			dep := pkg.Dependencies[specifier]
			if _, optional := pkg.OptionalDependencies[specifier]; optional {
				fmt.Fprintf(&buf, "  %q -> %q [style=dashed];\n", id, dep)
				continue
			}
			fmt.Fprintf(&buf, "  %q -> %q;\n", id, dep)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(pkg *snapshot.ResolvedPackage, detailed bool) string {
	label := pkg.ID.Nv.String()
	if !detailed {
		return label
	}

	var parts []string
	if pkg.CopyIndex > 0 {
		parts = append(parts, fmt.Sprintf("copy: %d", pkg.CopyIndex))
	}
	for _, peer := range pkg.ID.Peers {
		parts = append(parts, "peer: "+peer.Nv.String())
	}
	if pkg.Deprecated != nil {
		parts = append(parts, "deprecated")
	}
	if len(parts) == 0 {
		return label
	}
	return label + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(pkg *snapshot.ResolvedPackage, label string, isRoot bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if isRoot {
		attrs = append(attrs, "penwidth=2")
	}
	if pkg.Deprecated != nil {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey", "fontcolor=black")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the opening svg tag so the image origin is
// (0,0) and the pixel size matches the view box. Graphviz emits scaled
// points, which embedders handle inconsistently.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}
