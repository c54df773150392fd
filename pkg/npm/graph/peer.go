package graph

import (
	"context"

	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/registry"
)

// peerMatch is one candidate resolution for a peer dependency found by
// searching the current node, its ancestors, or the roots.
type peerMatch struct {
	nv     npm.PackageNv
	nodeID NodeID
	// ref becomes the identity peer reference when this match is chosen.
	ref *parentRef
	// pathNodes are the path nodes that must have the peer attached to
	// their identity, ordered from the declaring node upward.
	pathNodes []*graphPath
}

// resolvePeerDep resolves one peer (or optional peer) dependency entry
// declared by the node at path, searching in priority order: a sibling
// on the node itself, then ancestors and their children up to the roots,
// then (for required peers) the registry directly.
func (r *Resolver) resolvePeerDep(ctx context.Context, specifier string, entry *registry.DependencyEntry, peerPackageInfo *registry.PackageInfo, path *graphPath) error {
	g := r.graph
	node := g.borrowNode(path.nodeID())

	var previousNv npm.PackageNv
	if childID, ok := node.children[specifier]; ok {
		previousNv = g.mustResolvedID(childID).nv
	}

	// Required peers are stable once resolved; an optional-peers revisit
	// only re-traverses into them, and not at all when the peer is an
	// ancestor already being walked on this path.
	if path.mode == modeOptionalPeers && entry.Kind == registry.KindPeer && !previousNv.IsZero() {
		if path.findAncestor(previousNv) == nil {
			r.enqueue(path.withChild(specifier, node.children[specifier], previousNv))
		}
		return nil
	}

	// A sibling dependency on the node itself is the cheapest provider.
	for _, sibSpecifier := range node.sortedSpecifiers() {
		if sibSpecifier == specifier {
			continue
		}
		childID := node.children[sibSpecifier]
		resolved, ok := g.resolvedIDs.get(childID)
		if !ok || resolved.nv.Name != entry.Name {
			continue
		}
		r.checkUnmetPeer(path, entry, resolved.nv, peerPackageInfo)
		if entry.Kind == registry.KindOptionalPeer {
			r.optionalPeers.markSeen(path.nv, specifier)
		}
		ref := &parentRef{parentPath: path, childNv: resolved.nv}
		r.setNewPeerDep([]*graphPath{path}, ref, specifier, resolved.nv, childID)
		return nil
	}

	// Search ancestors, their other children, and the root packages.
	if matches := r.findPeerMatches(path, entry.Name); len(matches) > 0 {
		chosen := matches[0]
		if !previousNv.IsZero() {
			// Prefer the resolution from an earlier pass over the nearest
			// match, to avoid creating a needless duplicate copy.
			for _, m := range matches {
				if m.nv == previousNv {
					chosen = m
					break
				}
			}
		}
		r.checkUnmetPeer(path, entry, chosen.nv, peerPackageInfo)
		if entry.Kind == registry.KindOptionalPeer {
			r.optionalPeers.markSeen(path.nv, specifier)
		}
		r.setNewPeerDep(chosen.pathNodes, chosen.ref, specifier, chosen.nv, chosen.nodeID)
		return nil
	}

	if entry.Kind == registry.KindOptionalPeer {
		// Unresolved optional peers stay unresolved unless the same peer
		// slot resolved for this package elsewhere in the graph.
		if r.optionalPeers.hasSeen(path.nv, specifier) {
			if childID, childNv, ok := r.findGlobalOptionalPeer(path, specifier); ok {
				ref := &parentRef{parentPath: path, childNv: childNv}
				r.setNewPeerDep([]*graphPath{path}, ref, specifier, childNv, childID)
			}
		}
		return nil
	}

	// Required peer with no provider anywhere: resolve it directly, as if
	// it were a fresh dependency of the declaring node.
	vi, err := r.versions.ResolveBestVersionInfo(entry.VersionReq, peerPackageInfo, g.versionsFor(entry.Name))
	if err != nil {
		return err
	}
	peerNv := npm.PackageNv{Name: entry.Name, Version: vi.Version}
	r.checkUnmetPeer(path, entry, peerNv, peerPackageInfo)
	_, peerNodeID := g.getOrCreateForID(resolvedID{nv: peerNv})
	ref := &parentRef{parentPath: path, childNv: peerNv}
	r.setNewPeerDep([]*graphPath{path}, ref, specifier, peerNv, peerNodeID)
	return nil
}

// findPeerMatches walks upward from path collecting every node named
// peerName: each ancestor itself, each ancestor's other children, and
// finally the root packages. Matches are ordered nearest-first.
func (r *Resolver) findPeerMatches(path *graphPath, peerName string) []peerMatch {
	g := r.graph
	var matches []peerMatch
	chain := []*graphPath{path}
	cur := path
	for {
		prev := cur.previous
		if prev == nil {
			for _, nv := range g.sortedRootNvs() {
				if nv.Name != peerName {
					continue
				}
				matches = append(matches, peerMatch{
					nv:        nv,
					nodeID:    g.rootPackages[nv],
					ref:       &parentRef{childNv: nv},
					pathNodes: copyChain(chain),
				})
			}
			return matches
		}
		if prev.nv.Name == peerName {
			// The ancestor itself provides the peer. Its identity is
			// excluded from the rewrite by the circular-to-self rule in
			// setNewPeerDep.
			ref := &parentRef{childNv: prev.nv}
			if !prev.isRoot() {
				ref.parentPath = prev.previous
			}
			matches = append(matches, peerMatch{
				nv:        prev.nv,
				nodeID:    prev.nodeID(),
				ref:       ref,
				pathNodes: append(copyChain(chain), prev),
			})
		}
		prevNode := g.borrowNode(prev.nodeID())
		for _, sibSpecifier := range prevNode.sortedSpecifiers() {
			if sibSpecifier == cur.specifier {
				continue
			}
			childID := prevNode.children[sibSpecifier]
			resolved, ok := g.resolvedIDs.get(childID)
			if !ok || resolved.nv.Name != peerName {
				continue
			}
			matches = append(matches, peerMatch{
				nv:        resolved.nv,
				nodeID:    childID,
				ref:       &parentRef{parentPath: prev, childNv: resolved.nv},
				pathNodes: copyChain(chain),
			})
		}
		chain = append(chain, prev)
		cur = prev
	}
}

func copyChain(chain []*graphPath) []*graphPath {
	return append([]*graphPath(nil), chain...)
}

// findGlobalOptionalPeer breadth-first searches the whole graph for a
// node with the same name+version as path's node that already resolved
// this optional peer slot, and reuses its resolution.
func (r *Resolver) findGlobalOptionalPeer(path *graphPath, specifier string) (NodeID, npm.PackageNv, bool) {
	g := r.graph
	for _, nodeID := range g.reachableNodes() {
		resolved, ok := g.resolvedIDs.get(nodeID)
		if !ok || resolved.nv != path.nv {
			continue
		}
		childID, ok := g.borrowNode(nodeID).children[specifier]
		if !ok {
			continue
		}
		childResolved, ok := g.resolvedIDs.get(childID)
		if !ok {
			continue
		}
		return childID, childResolved.nv, true
	}
	return 0, npm.PackageNv{}, false
}

// checkUnmetPeer records a diagnostic when the chosen version falls
// outside the declared peer range. Resolution proceeds with the
// mismatched version regardless.
func (r *Resolver) checkUnmetPeer(path *graphPath, entry *registry.DependencyEntry, resolvedNv npm.PackageNv, info *registry.PackageInfo) {
	ok, err := r.versions.VersionReqSatisfies(entry.PeerReq(), resolvedNv.Version, info)
	if err == nil && ok {
		return
	}
	r.graph.unmetPeerDiagnostics = append(r.graph.unmetPeerDiagnostics, UnmetPeerDiagnostic{
		Ancestors:  path.ancestorNvs(),
		Dependency: entry.Name + "@" + entry.PeerReq().String(),
		Resolved:   resolvedNv,
	})
}

// setNewPeerDep applies a chosen peer resolution: every node from the
// declaring node up to (but not including) the provider has the peer
// appended to its identity, and the declaring node gets a child edge to
// the peer. A path whose top is the provider itself is circular: the
// provider is excluded from the rewrite and the edge is wired as a
// linked circular descendant instead of extending the traversal, the
// same way regular circular dependencies are bounded. Otherwise the
// peer is enqueued for analysis, unless the identity already carried it
// and the edge already points at it.
func (r *Resolver) setNewPeerDep(pathNodes []*graphPath, ref *parentRef, specifier string, peerNv npm.PackageNv, peerNodeID NodeID) {
	g := r.graph
	top := pathNodes[len(pathNodes)-1]
	circular := top.nv == peerNv
	if circular {
		pathNodes = pathNodes[:len(pathNodes)-1]
	}
	if len(pathNodes) == 0 {
		return
	}

	changed := r.attachPeerToPath(pathNodes, peerDep{parent: ref}, peerNv)

	bottom := pathNodes[0]
	if circular {
		if bottom.nodeID() == top.nodeID() {
			return
		}
		descendant := bottom.withSharedRef(specifier, top.nodeRef, peerNv)
		g.setChildOfParentNode(bottom.nodeID(), specifier, top.nodeID())
		top.addLinkedCircularDescendant(descendant)
		return
	}
	if !changed && g.borrowNode(bottom.nodeID()).children[specifier] == peerNodeID {
		// Nothing new to apply. Re-walking the peer here would never
		// converge when the peer's own peers point back at this node.
		return
	}
	if bottom.nodeID() != peerNodeID {
		g.setChildOfParentNode(bottom.nodeID(), specifier, peerNodeID)
	}
	r.enqueue(bottom.withChild(specifier, peerNodeID, peerNv))
}

// attachPeerToPath rewrites identities top-down so each parent edge
// update sees the parent's already-rewritten node. Rewrites are
// copy-on-write: a fresh identity either matches an existing node or
// allocates a new one with the old node's children cloned over, leaving
// the old node in place for anything still referencing it. It reports
// whether any node on the path was re-identified.
func (r *Resolver) attachPeerToPath(pathNodes []*graphPath, peer peerDep, peerNv npm.PackageNv) bool {
	g := r.graph
	changed := false
	for i := len(pathNodes) - 1; i >= 0; i-- {
		p := pathNodes[i]
		oldID := p.nodeID()
		oldResolved := g.mustResolvedID(oldID)
		if oldResolved.nv == peerNv {
			// A node never carries itself as a peer.
			continue
		}
		newResolved, added := oldResolved.withPeer(g, peer)
		if !added {
			continue
		}
		created, newID := g.getOrCreateForID(newResolved)
		if newID == oldID {
			continue
		}
		changed = true
		if created {
			for childSpecifier, childID := range g.borrowNode(oldID).children {
				if childID == newID {
					continue
				}
				g.setChildOfParentNode(newID, childSpecifier, childID)
			}
			g.movedNodeIDs = append(g.movedNodeIDs, movedNode{old: oldID, new: newID})
		}
		p.changeID(newID)

		if p.isRoot() {
			g.rootPackages[p.rootNv] = newID
		} else {
			g.setChildOfParentNode(p.previous.nodeID(), p.specifier, newID)
		}

		// Circular references back to this node follow it to its new
		// identity: the nodes inside each cycle pick up the peer too, and
		// the looping edge is re-pointed.
		for _, descendant := range append([]*graphPath(nil), p.linkedCircularDescendants...) {
			if descendant.previous == nil {
				continue
			}
			if descendant.previous.nodeID() != newID {
				cycle := descendant.previous.pathToAncestorExclusive(newID)
				if len(cycle) > 0 && r.attachPeerToPath(cycle, peer, peerNv) {
					changed = true
				}
			}
			if descendant.previous.nodeID() != newID {
				g.setChildOfParentNode(descendant.previous.nodeID(), descendant.specifier, newID)
			}
		}
	}
	return changed
}
