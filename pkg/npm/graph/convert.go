package graph

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/registry"
	"github.com/depstack/depstack/pkg/npm/snapshot"
)

// FromSnapshot rebuilds a mutable graph from a previously serialized
// snapshot, so a new resolution can extend it while keeping prior
// version choices and copy indices.
func FromSnapshot(snap *snapshot.Snapshot) (*Graph, error) {
	g := NewGraph()
	created := make(map[string]NodeID)

	rootKeys := make([]string, 0, len(snap.RootPackages))
	for key := range snap.RootPackages {
		rootKeys = append(rootKeys, key)
	}
	sort.Strings(rootKeys)
	for _, key := range rootKeys {
		id := snap.RootPackages[key]
		nodeID, err := g.fillFromSnapshot(snap, id, nil, created)
		if err != nil {
			return nil, err
		}
		nv, err := npm.ParsePackageNv(key)
		if err != nil {
			return nil, err
		}
		g.rootPackages[nv] = nodeID
	}

	for reqKey, nv := range snap.PackageReqs {
		req, err := npm.ParsePackageReq(reqKey)
		if err != nil {
			return nil, err
		}
		g.packageReqs[reqKey] = packageReqEntry{req: req, nv: nv}
	}

	for id, index := range snap.CopyIndexes() {
		g.packagesToCopyIndex[id] = index
	}
	return g, nil
}

// fillFromSnapshot creates the node for one package id, recursively
// creating its peers (so the identity can reference them) and then its
// dependencies. The node is registered before recursing so dependency
// cycles terminate.
func (g *Graph) fillFromSnapshot(snap *snapshot.Snapshot, pkgID *npm.PackageID, ancestors []*npm.PackageID, created map[string]NodeID) (NodeID, error) {
	originalKey := pkgID.String()
	if nodeID, ok := created[originalKey]; ok {
		return nodeID, nil
	}
	pkg, ok := snap.Packages[originalKey]
	if !ok {
		// A self-referential circular id denotes a package through peer
		// substitution without its own table entry. Recover by matching
		// an ancestor with the same name+version, falling back to any
		// matching package (sorted, for determinism).
		recovered := recoverCircularID(snap, pkgID, ancestors)
		if recovered == nil {
			return 0, errors.New(errors.ErrCodeInvalidLockfile, "snapshot is missing package %s", originalKey)
		}
		if nodeID, ok := created[recovered.String()]; ok {
			created[originalKey] = nodeID
			return nodeID, nil
		}
		pkgID = recovered
		pkg = snap.Packages[pkgID.String()]
	}

	nodeID := g.createNode(pkgID.Nv)
	created[originalKey] = nodeID
	created[pkgID.String()] = nodeID
	ancestors = append(ancestors, pkgID)

	peers := make([]peerDep, 0, len(pkgID.Peers))
	for _, peerID := range pkgID.Peers {
		peerNodeID, err := g.fillFromSnapshot(snap, peerID, ancestors, created)
		if err != nil {
			return 0, err
		}
		peers = append(peers, peerDep{nodeID: peerNodeID})
	}
	g.resolvedIDs.set(g, nodeID, resolvedID{nv: pkgID.Nv, peers: peers})

	specifiers := make([]string, 0, len(pkg.Dependencies))
	for specifier := range pkg.Dependencies {
		specifiers = append(specifiers, specifier)
	}
	sort.Strings(specifiers)
	for _, specifier := range specifiers {
		childNodeID, err := g.fillFromSnapshot(snap, pkg.Dependencies[specifier], ancestors, created)
		if err != nil {
			return 0, err
		}
		g.setChildOfParentNode(nodeID, specifier, childNodeID)
	}
	return nodeID, nil
}

func recoverCircularID(snap *snapshot.Snapshot, pkgID *npm.PackageID, ancestors []*npm.PackageID) *npm.PackageID {
	for _, ancestor := range ancestors {
		if ancestor.Nv == pkgID.Nv {
			if _, ok := snap.Packages[ancestor.String()]; ok {
				return ancestor
			}
		}
	}
	var candidates []string
	for key, pkg := range snap.Packages {
		if pkg.ID.Nv == pkgID.Nv {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Strings(candidates)
	return snap.Packages[candidates[0]].ID
}

// IntoSnapshot finalizes the graph: computes the final package id of
// every reachable node, fetches registry metadata to fill in dependency
// flags, migrates and assigns copy indices, and returns the immutable
// snapshot. The graph must not be used afterwards.
//
// When the registry signals a forced reload because a referenced version
// is missing, the metadata phase restarts exactly once; a second reload
// signal means the registry broke its contract and panics.
func (g *Graph) IntoSnapshot(ctx context.Context, api registry.API, links map[string][]*registry.VersionInfo) (*snapshot.Snapshot, error) {
	order := g.reachableNodes()
	pkgIDs := make(map[NodeID]*npm.PackageID, len(order))
	reachable := make(map[string]struct{}, len(order))
	names := make(map[string]struct{})
	for _, nodeID := range order {
		id := g.getNpmPkgID(nodeID)
		pkgIDs[nodeID] = id
		reachable[id.String()] = struct{}{}
		names[id.Nv.Name] = struct{}{}
	}

	// Ids renamed by peer attachment keep their physical install slot
	// when the old id is gone and the new one has no slot yet.
	for _, moved := range g.movedNodeIDs {
		oldKey := g.getNpmPkgID(moved.old).String()
		newKey := g.getNpmPkgID(moved.new).String()
		if _, stillUsed := reachable[oldKey]; stillUsed {
			continue
		}
		index, hasOld := g.packagesToCopyIndex[oldKey]
		if !hasOld {
			continue
		}
		if _, hasNew := g.packagesToCopyIndex[newKey]; hasNew {
			continue
		}
		g.packagesToCopyIndex[newKey] = index
		delete(g.packagesToCopyIndex, oldKey)
	}

	copyIndexes := snapshot.NewCopyIndexResolver()
	seedKeys := make([]string, 0, len(g.packagesToCopyIndex))
	for key := range g.packagesToCopyIndex {
		if _, ok := reachable[key]; ok {
			seedKeys = append(seedKeys, key)
		}
	}
	sort.Strings(seedKeys)
	for _, key := range seedKeys {
		id, err := npm.ParsePackageID(key)
		if err != nil {
			return nil, err
		}
		copyIndexes.Seed(id, g.packagesToCopyIndex[key])
	}

	sortedNames := make([]string, 0, len(names))
	for name := range names {
		sortedNames = append(sortedNames, name)
	}
	sort.Strings(sortedNames)

	restarted := false
	for {
		infos, err := fetchPackageInfos(ctx, api, sortedNames)
		if err != nil {
			return nil, err
		}
		snap, missing := g.buildSnapshot(order, pkgIDs, copyIndexes, infos, links)
		if missing == nil {
			return snap, nil
		}
		if api.MarkForceReload() {
			if restarted {
				panic("registry signaled a second forced reload in one resolution")
			}
			restarted = true
			continue
		}
		return nil, registry.VersionNotFound(missing.Name, missing.Version)
	}
}

func fetchPackageInfos(ctx context.Context, api registry.API, names []string) (map[string]*registry.PackageInfo, error) {
	infos := make(map[string]*registry.PackageInfo, len(names))
	results := make([]*registry.PackageInfo, len(names))
	eg, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		eg.Go(func() error {
			info, err := api.PackageInfo(ctx, name)
			if err != nil {
				return err
			}
			results[i] = info
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for i, name := range names {
		infos[name] = results[i]
	}
	return infos, nil
}

// buildSnapshot assembles the final snapshot, or reports the first
// name+version whose metadata is missing so the caller can retry.
func (g *Graph) buildSnapshot(order []NodeID, pkgIDs map[NodeID]*npm.PackageID, copyIndexes *snapshot.CopyIndexResolver, infos map[string]*registry.PackageInfo, links map[string][]*registry.VersionInfo) (*snapshot.Snapshot, *npm.PackageNv) {
	snap := snapshot.New()
	for _, nodeID := range order {
		pkgID := pkgIDs[nodeID]
		vi := lookupVersionInfo(infos, links, pkgID.Nv)
		if vi == nil {
			nv := pkgID.Nv
			return nil, &nv
		}
		node := g.borrowNode(nodeID)
		pkg := &snapshot.ResolvedPackage{
			ID:               pkgID,
			CopyIndex:        copyIndexes.Resolve(pkgID),
			OS:               vi.OS,
			CPU:              vi.CPU,
			HasBin:           vi.HasBin(),
			HasInstallScript: vi.HasInstallScript(),
			Deprecated:       vi.Deprecated,
			Dist:             vi.Dist,
		}
		if len(node.children) > 0 {
			pkg.Dependencies = make(map[string]*npm.PackageID, len(node.children))
			for specifier, childID := range node.children {
				pkg.Dependencies[specifier] = pkgIDs[childID]
			}
		}
		for specifier := range node.children {
			if _, ok := vi.OptionalDependencies[specifier]; ok {
				if pkg.OptionalDependencies == nil {
					pkg.OptionalDependencies = make(map[string]struct{})
				}
				pkg.OptionalDependencies[specifier] = struct{}{}
			}
			if meta, ok := vi.PeerDependenciesMeta[specifier]; ok && meta.Optional {
				if pkg.OptionalPeers == nil {
					pkg.OptionalPeers = make(map[string]struct{})
				}
				pkg.OptionalPeers[specifier] = struct{}{}
			}
		}
		snap.Packages[pkgID.String()] = pkg
	}
	for nv, nodeID := range g.rootPackages {
		snap.RootPackages[nv.String()] = pkgIDs[nodeID]
	}
	for reqKey, entry := range g.packageReqs {
		snap.PackageReqs[reqKey] = entry.nv
	}
	return snap, nil
}

func lookupVersionInfo(infos map[string]*registry.PackageInfo, links map[string][]*registry.VersionInfo, nv npm.PackageNv) *registry.VersionInfo {
	for _, vi := range links[nv.Name] {
		if vi.Version == nv.Version {
			return vi
		}
	}
	info, ok := infos[nv.Name]
	if !ok {
		return nil
	}
	return info.Versions[nv.Version]
}
