// Package graph implements peer-dependency-aware npm dependency
// resolution: it expands a set of root package requirements into a full
// dependency graph, resolving peer dependencies by searching ancestors
// and rewriting node identities when a peer attaches, and converts the
// result to and from an immutable [snapshot.Snapshot].
//
// The central difficulty is that attaching a peer dependency changes
// which "copy" of a package a node represents, after the node was
// created. The graph therefore separates a node (storage, children
// edges) from its resolved identity (name+version plus attached peers)
// and rewrites identities copy-on-write as peers are discovered.
package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/depstack/depstack/pkg/npm"
)

// NodeID identifies a node within one graph. IDs are dense, assigned
// monotonically, and never reused within a resolution.
type NodeID int

// node is the storage for one graph node. Children are keyed by the bare
// specifier used in the parent's dependency list.
type node struct {
	children map[string]NodeID

	// noPeers is set once the node's subtree is proven to contain no
	// unresolved peer dependencies, so re-traversals can skip it. Cleared
	// whenever the dedup pass restructures the graph.
	noPeers bool
}

func (n *node) sortedSpecifiers() []string {
	specifiers := make([]string, 0, len(n.children))
	for s := range n.children {
		specifiers = append(specifiers, s)
	}
	sort.Strings(specifiers)
	return specifiers
}

// parentRef lazily identifies a peer by where it lives rather than by
// node id: "the child of this parent (or this root) with this
// name+version". The node satisfying a peer can itself be re-identified
// after the reference is recorded; resolving through the parent at read
// time avoids stale node ids.
type parentRef struct {
	// parentPath is the path node whose child provides the peer; nil
	// when the peer is a root package.
	parentPath *graphPath
	childNv    npm.PackageNv
}

// peerDep is one peer attached to a node identity: either a direct node
// reference (from a snapshot reload) or a parent reference.
type peerDep struct {
	parent *parentRef
	nodeID NodeID
}

// resolvedID is the logical identity of a node: its name+version plus
// the ordered list of peers attached so far.
type resolvedID struct {
	nv    npm.PackageNv
	peers []peerDep
}

// withPeer returns a copy of the identity with peer appended, or ok
// false when an equivalent peer is already attached.
func (id resolvedID) withPeer(g *Graph, peer peerDep) (resolvedID, bool) {
	key := g.peerKey(peer)
	for _, existing := range id.peers {
		if g.peerKey(existing) == key {
			return id, false
		}
	}
	out := resolvedID{nv: id.nv, peers: make([]peerDep, 0, len(id.peers)+1)}
	out.peers = append(out.peers, id.peers...)
	out.peers = append(out.peers, peer)
	return out, true
}

// resolvedNodeIDs is the bidirectional node-to-identity table. Identity
// keys incorporate the *current* node id of any parent reference, so a
// key computed now may differ from the key computed at insertion; the
// table keeps the latest mapping and evicts the stale reverse entry when
// a node is re-assigned.
type resolvedNodeIDs struct {
	nodeToResolved map[NodeID]resolvedID
	resolvedToNode map[string]NodeID
}

func newResolvedNodeIDs() resolvedNodeIDs {
	return resolvedNodeIDs{
		nodeToResolved: make(map[NodeID]resolvedID),
		resolvedToNode: make(map[string]NodeID),
	}
}

func (t resolvedNodeIDs) set(g *Graph, nodeID NodeID, id resolvedID) {
	if old, ok := t.nodeToResolved[nodeID]; ok {
		oldKey := g.resolvedIDKey(old)
		if existing, ok := t.resolvedToNode[oldKey]; ok && existing == nodeID {
			delete(t.resolvedToNode, oldKey)
		}
	}
	t.nodeToResolved[nodeID] = id
	t.resolvedToNode[g.resolvedIDKey(id)] = nodeID
}

func (t resolvedNodeIDs) get(nodeID NodeID) (resolvedID, bool) {
	id, ok := t.nodeToResolved[nodeID]
	return id, ok
}

// UnmetPeerDiagnostic records a peer dependency that resolved to a
// version outside its declared range. Not an error: resolution proceeds
// with the mismatched version, matching npm's tolerance.
type UnmetPeerDiagnostic struct {
	// Ancestors is the name@version chain from the root down to the
	// package declaring the peer dependency.
	Ancestors []string
	// Dependency is the declared requirement ("name@range").
	Dependency string
	// Resolved is the version the peer actually resolved to.
	Resolved npm.PackageNv
}

type movedNode struct {
	old NodeID
	new NodeID
}

type packageReqEntry struct {
	req npm.PackageReq
	nv  npm.PackageNv
}

// Graph is the mutable node and edge store a resolution builds up. A
// graph is either created empty or loaded from a snapshot, mutated by a
// [Resolver], and finally consumed by [Graph.IntoSnapshot].
type Graph struct {
	nodes       []*node
	resolvedIDs resolvedNodeIDs

	// rootPackages maps each root name+version to its current node. The
	// mapping is updated when peer attachment re-identifies a root.
	rootPackages map[npm.PackageNv]NodeID

	// packageReqs maps each registered requirement (by its string form)
	// to the name+version it resolved to.
	packageReqs map[string]packageReqEntry

	// packageNameVersions tracks the versions present per package name,
	// consulted so new requirements prefer versions already in the graph.
	packageNameVersions map[string]map[string]struct{}

	// packagesToCopyIndex carries copy-index assignments from a previous
	// snapshot, keyed by serialized package id.
	packagesToCopyIndex map[string]int

	// movedNodeIDs records identity rewrites (old node, new node) so
	// IntoSnapshot can migrate copy-index slots to renamed ids.
	movedNodeIDs []movedNode

	unmetPeerDiagnostics []UnmetPeerDiagnostic
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		resolvedIDs:         newResolvedNodeIDs(),
		rootPackages:        make(map[npm.PackageNv]NodeID),
		packageReqs:         make(map[string]packageReqEntry),
		packageNameVersions: make(map[string]map[string]struct{}),
		packagesToCopyIndex: make(map[string]int),
	}
}

// UnmetPeerDiagnostics returns the non-fatal peer mismatches recorded
// during resolution.
func (g *Graph) UnmetPeerDiagnostics() []UnmetPeerDiagnostic {
	return g.unmetPeerDiagnostics
}

func (g *Graph) borrowNode(id NodeID) *node {
	return g.nodes[id]
}

func (g *Graph) createNode(nv npm.PackageNv) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, &node{children: make(map[string]NodeID)})
	g.trackVersion(nv)
	return id
}

func (g *Graph) trackVersion(nv npm.PackageNv) {
	versions, ok := g.packageNameVersions[nv.Name]
	if !ok {
		versions = make(map[string]struct{})
		g.packageNameVersions[nv.Name] = versions
	}
	versions[nv.Version] = struct{}{}
}

// versionsFor returns the versions of name currently tracked, sorted for
// deterministic candidate ordering.
func (g *Graph) versionsFor(name string) []string {
	versions := make([]string, 0, len(g.packageNameVersions[name]))
	for v := range g.packageNameVersions[name] {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// getOrCreateForID returns the node with the given identity, creating
// one on miss. The bool reports whether a node was created.
func (g *Graph) getOrCreateForID(id resolvedID) (bool, NodeID) {
	key := g.resolvedIDKey(id)
	if nodeID, ok := g.resolvedIDs.resolvedToNode[key]; ok {
		return false, nodeID
	}
	nodeID := g.createNode(id.nv)
	g.resolvedIDs.nodeToResolved[nodeID] = id
	g.resolvedIDs.resolvedToNode[key] = nodeID
	return true, nodeID
}

func (g *Graph) mustResolvedID(nodeID NodeID) resolvedID {
	id, ok := g.resolvedIDs.get(nodeID)
	if !ok {
		panic(fmt.Sprintf("node %d has no resolved identity", nodeID))
	}
	return id
}

// setChildOfParentNode inserts or overwrites one child edge. A node can
// never be its own direct child; that would mean a resolver bug.
func (g *Graph) setChildOfParentNode(parent NodeID, specifier string, child NodeID) {
	if parent == child {
		panic(fmt.Sprintf("node %d cannot be its own child (specifier %q)", parent, specifier))
	}
	g.nodes[parent].children[specifier] = child
}

func (g *Graph) resolvedIDKey(id resolvedID) string {
	var sb strings.Builder
	sb.WriteString(id.nv.String())
	for _, peer := range id.peers {
		sb.WriteByte('|')
		sb.WriteString(g.peerKey(peer))
	}
	return sb.String()
}

// peerKey returns the identity-hash contribution of one peer, based on
// its parent's current node id for parent references.
func (g *Graph) peerKey(p peerDep) string {
	if p.parent == nil {
		return "node:" + strconv.Itoa(int(p.nodeID))
	}
	if p.parent.parentPath != nil {
		return "parent:" + strconv.Itoa(int(p.parent.parentPath.nodeID())) + ":" + p.parent.childNv.String()
	}
	return "root:" + p.parent.childNv.String()
}

// resolvePeerNodeID resolves a peer reference to the node currently
// satisfying it. Parent references are resolved by scanning the parent's
// current children for the recorded name+version.
func (g *Graph) resolvePeerNodeID(p peerDep) (NodeID, bool) {
	if p.parent == nil {
		return p.nodeID, true
	}
	if p.parent.parentPath == nil {
		nodeID, ok := g.rootPackages[p.parent.childNv]
		return nodeID, ok
	}
	parentNode := g.borrowNode(p.parent.parentPath.nodeID())
	for _, specifier := range parentNode.sortedSpecifiers() {
		childID := parentNode.children[specifier]
		if resolved, ok := g.resolvedIDs.get(childID); ok && resolved.nv == p.parent.childNv {
			return childID, true
		}
	}
	return 0, false
}

// getNpmPkgID computes the final serialized package id for a node,
// expanding each attached peer recursively. Cycles through peer chains
// are bounded by a currently-expanding set keyed by name+version: when a
// name+version recurs inside its own expansion, the peer is emitted as a
// bare id with no further peer expansion.
func (g *Graph) getNpmPkgID(nodeID NodeID) *npm.PackageID {
	resolved := g.mustResolvedID(nodeID)
	return g.pkgIDFromResolved(resolved, make(map[npm.PackageNv]struct{}))
}

func (g *Graph) pkgIDFromResolved(resolved resolvedID, expanding map[npm.PackageNv]struct{}) *npm.PackageID {
	id := &npm.PackageID{Nv: resolved.nv}
	if len(resolved.peers) == 0 {
		return id
	}
	if _, ok := expanding[resolved.nv]; ok {
		return id
	}
	expanding[resolved.nv] = struct{}{}
	defer delete(expanding, resolved.nv)

	seen := make(map[string]struct{}, len(resolved.peers))
	for _, peer := range resolved.peers {
		peerNodeID, ok := g.resolvePeerNodeID(peer)
		if !ok {
			continue
		}
		peerID := g.pkgIDFromResolved(g.mustResolvedID(peerNodeID), expanding)
		key := peerID.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		id.Peers = append(id.Peers, peerID)
	}
	return id
}

// reachableNodes returns every node reachable from the roots in a
// deterministic breadth-first order. Nodes orphaned by identity rewrites
// or dedup are simply not visited.
func (g *Graph) reachableNodes() []NodeID {
	var order []NodeID
	seen := make(map[NodeID]struct{})
	var queue []NodeID
	for _, nv := range g.sortedRootNvs() {
		nodeID := g.rootPackages[nv]
		if _, ok := seen[nodeID]; ok {
			continue
		}
		seen[nodeID] = struct{}{}
		queue = append(queue, nodeID)
	}
	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]
		order = append(order, nodeID)
		node := g.borrowNode(nodeID)
		for _, specifier := range node.sortedSpecifiers() {
			child := node.children[specifier]
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	return order
}

// sortedRootNvs returns the root package name+versions in a stable order.
func (g *Graph) sortedRootNvs() []npm.PackageNv {
	nvs := make([]npm.PackageNv, 0, len(g.rootPackages))
	for nv := range g.rootPackages {
		nvs = append(nvs, nv)
	}
	sort.Slice(nvs, func(i, j int) bool {
		if nvs[i].Name != nvs[j].Name {
			return nvs[i].Name < nvs[j].Name
		}
		return nvs[i].Version < nvs[j].Version
	})
	return nvs
}
