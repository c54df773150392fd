package graph

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/depstack/depstack/pkg/npm"
)

// dedup consolidates multiple versions of a package onto one version
// when a single version satisfies every requirement that led to the
// duplicates, preferring the highest. It reports whether anything
// changed; when it did, the graph has been reset for re-resolution and
// the roots re-enqueued. ResolvePending bounds this to one pass per
// call, so the expensive whole-graph rebuild can never oscillate.
func (r *Resolver) dedup() bool {
	g := r.graph

	// Collect the requirements leading to each reachable version: root
	// requirements plus the dependency entries behind every child edge.
	reqsByName := make(map[string]map[string]*npm.VersionReq)
	versionsByName := make(map[string]map[string]struct{})
	addReq := func(name string, req *npm.VersionReq) {
		reqs, ok := reqsByName[name]
		if !ok {
			reqs = make(map[string]*npm.VersionReq)
			reqsByName[name] = reqs
		}
		reqs[req.String()] = req
	}
	for _, entry := range g.packageReqs {
		addReq(entry.req.Name, entry.req.Req)
	}
	order := g.reachableNodes()
	for _, nodeID := range order {
		resolved := g.mustResolvedID(nodeID)
		versions, ok := versionsByName[resolved.nv.Name]
		if !ok {
			versions = make(map[string]struct{})
			versionsByName[resolved.nv.Name] = versions
		}
		versions[resolved.nv.Version] = struct{}{}

		node := g.borrowNode(nodeID)
		for _, entry := range r.depEntryCache[resolved.nv.String()] {
			if _, ok := node.children[entry.BareSpecifier]; !ok {
				continue
			}
			req := entry.VersionReq
			if entry.IsPeer() {
				req = entry.PeerReq()
			}
			addReq(entry.Name, req)
		}
	}

	// For each duplicated name, map every requirement to a target
	// version: one global winner when possible, else greedy highest-first.
	assignments := make(map[string]map[string]string)
	for name, versions := range versionsByName {
		if len(versions) < 2 {
			continue
		}
		reqs := reqsByName[name]
		if len(reqs) == 0 {
			continue
		}
		candidates := sortVersionsDescending(versions)
		assignment := make(map[string]string, len(reqs))
		if winner := findGlobalWinner(candidates, reqs); winner != "" {
			for reqKey := range reqs {
				assignment[reqKey] = winner
			}
		} else {
			remaining := make(map[string]*npm.VersionReq, len(reqs))
			for k, v := range reqs {
				remaining[k] = v
			}
			for _, candidate := range candidates {
				for reqKey, req := range remaining {
					if req.MatchesString(candidate) {
						assignment[reqKey] = candidate
						delete(remaining, reqKey)
					}
				}
				if len(remaining) == 0 {
					break
				}
			}
		}
		assignments[name] = assignment
	}
	if len(assignments) == 0 {
		return false
	}

	// Apply: move root requirements onto their assigned versions.
	changed := false
	for key, entry := range g.packageReqs {
		target, ok := assignments[entry.req.Name][entry.req.Req.String()]
		if !ok || target == entry.nv.Version {
			continue
		}
		newNv := npm.PackageNv{Name: entry.req.Name, Version: target}
		if _, ok := g.rootPackages[newNv]; !ok {
			_, nodeID := g.getOrCreateForID(resolvedID{nv: newNv})
			g.rootPackages[newNv] = nodeID
		}
		entry.nv = newNv
		g.packageReqs[key] = entry
		changed = true
	}

	// Strip edges whose requirement was consolidated onto a different
	// version; they get re-resolved on the next pass.
	for _, nodeID := range order {
		resolved := g.mustResolvedID(nodeID)
		node := g.borrowNode(nodeID)
		for _, entry := range r.depEntryCache[resolved.nv.String()] {
			childID, ok := node.children[entry.BareSpecifier]
			if !ok {
				continue
			}
			req := entry.VersionReq
			if entry.IsPeer() {
				req = entry.PeerReq()
			}
			target, ok := assignments[entry.Name][req.String()]
			if !ok {
				continue
			}
			if childNv := g.mustResolvedID(childID).nv; target != childNv.Version {
				delete(node.children, entry.BareSpecifier)
				changed = true
			}
		}
	}
	if !changed {
		return false
	}

	// Drop consolidated-away root versions no requirement points at.
	referenced := make(map[npm.PackageNv]struct{}, len(g.packageReqs))
	for _, entry := range g.packageReqs {
		referenced[entry.nv] = struct{}{}
	}
	for nv := range g.rootPackages {
		if _, ok := assignments[nv.Name]; !ok {
			continue
		}
		if _, ok := referenced[nv]; !ok {
			delete(g.rootPackages, nv)
		}
	}

	// The restructure invalidates everything derived from the old shape:
	// peer attachments, traversal skips, id migrations, diagnostics, and
	// copy-index assignments all get rebuilt by the next pass.
	for _, n := range g.nodes {
		n.noPeers = false
	}
	nodeIDs := make([]NodeID, 0, len(g.resolvedIDs.nodeToResolved))
	for nodeID := range g.resolvedIDs.nodeToResolved {
		nodeIDs = append(nodeIDs, nodeID)
	}
	for _, nodeID := range nodeIDs {
		resolved := g.resolvedIDs.nodeToResolved[nodeID]
		if len(resolved.peers) > 0 {
			g.resolvedIDs.set(g, nodeID, resolvedID{nv: resolved.nv})
		}
	}
	g.movedNodeIDs = nil
	g.unmetPeerDiagnostics = nil
	g.packagesToCopyIndex = make(map[string]int)

	g.packageNameVersions = make(map[string]map[string]struct{})
	for _, nodeID := range g.reachableNodes() {
		g.trackVersion(g.mustResolvedID(nodeID).nv)
	}

	r.enqueueRoots(modeAll)
	return true
}

func sortVersionsDescending(versions map[string]struct{}) []string {
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		a, errA := semver.NewVersion(out[i])
		b, errB := semver.NewVersion(out[j])
		if errA != nil || errB != nil {
			return out[i] > out[j]
		}
		return a.GreaterThan(b)
	})
	return out
}

// findGlobalWinner returns the highest candidate satisfying every
// requirement, or "" when no single version does.
func findGlobalWinner(candidates []string, reqs map[string]*npm.VersionReq) string {
	for _, candidate := range candidates {
		all := true
		for _, req := range reqs {
			if !req.MatchesString(candidate) {
				all = false
				break
			}
		}
		if all {
			return candidate
		}
	}
	return ""
}
