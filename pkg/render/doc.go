// Package render turns resolved dependency snapshots into visual outputs.
//
// # Overview
//
// The package converts a [snapshot.Snapshot] into Graphviz DOT and renders
// it to SVG:
//
//	dot := render.ToDOT(snap, render.Options{})
//	svg, err := render.RenderSVG(dot)
//
// Every node is one resolved package instance. Peer-dependency copies of
// the same name and version appear as separate nodes, since they install
// separately. Root packages are drawn with a bold outline and deprecated
// packages with a dashed grey one.
//
// Output is deterministic: nodes and edges are emitted in sorted order, so
// the same snapshot always produces byte-identical DOT.
//
// [snapshot.Snapshot]: github.com/depstack/depstack/pkg/npm/snapshot
package render
