package graph

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/registry"
	"github.com/depstack/depstack/pkg/npm/snapshot"
	"github.com/depstack/depstack/pkg/npm/version"
	"github.com/depstack/depstack/pkg/observability"
)

// unresolvedOptionalPeers tracks which (parent name+version, specifier)
// optional peers have been resolved somewhere in the graph. When the set
// grows during a traversal, the roots are re-traversed so nodes that
// skipped the same optional peer earlier can pick up the resolution.
type unresolvedOptionalPeers struct {
	seenCount int
	seen      map[string]struct{}
}

func newUnresolvedOptionalPeers() *unresolvedOptionalPeers {
	return &unresolvedOptionalPeers{seen: make(map[string]struct{})}
}

func optionalPeerKey(parentNv npm.PackageNv, specifier string) string {
	return parentNv.String() + "|" + specifier
}

func (u *unresolvedOptionalPeers) markSeen(parentNv npm.PackageNv, specifier string) {
	key := optionalPeerKey(parentNv, specifier)
	if _, ok := u.seen[key]; ok {
		return
	}
	u.seen[key] = struct{}{}
	u.seenCount++
}

func (u *unresolvedOptionalPeers) hasSeen(parentNv npm.PackageNv, specifier string) bool {
	_, ok := u.seen[optionalPeerKey(parentNv, specifier)]
	return ok
}

// Resolver drives dependency resolution over a [Graph]. All per-run
// mutable state (pending queue, dependency entry cache, optional peer
// tracking) lives here; construct a fresh resolver per resolution.
type Resolver struct {
	graph    *Graph
	api      registry.API
	versions *version.Resolver

	dedupEnabled bool

	pending       []*graphPath
	depEntryCache map[string][]*registry.DependencyEntry
	optionalPeers *unresolvedOptionalPeers
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLinkPackages overlays local/linked package versions that take
// priority over registry data.
func WithLinkPackages(links map[string][]*registry.VersionInfo) ResolverOption {
	return func(r *Resolver) { r.versions.LinkPackages = links }
}

// WithDedup enables the post-resolution consolidation pass that collapses
// compatible duplicate versions.
func WithDedup() ResolverOption {
	return func(r *Resolver) { r.dedupEnabled = true }
}

// NewResolver creates a resolver over the given graph.
func NewResolver(g *Graph, api registry.API, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		graph:         g,
		api:           api,
		versions:      &version.Resolver{},
		depEntryCache: make(map[string][]*registry.DependencyEntry),
		optionalPeers: newUnresolvedOptionalPeers(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LinkPackages returns the linked package overlay, for passing along to
// [Graph.IntoSnapshot].
func (r *Resolver) LinkPackages() map[string][]*registry.VersionInfo {
	return r.versions.LinkPackages
}

func (r *Resolver) enqueue(path *graphPath) {
	r.pending = append(r.pending, path)
}

// AddPackageReq registers a root requirement and returns the name+version
// it resolved to. A requirement satisfied by an existing root reuses that
// root's subtree instead of resolving a fresh version, so compatible
// requirements share one resolution.
func (r *Resolver) AddPackageReq(ctx context.Context, req npm.PackageReq) (npm.PackageNv, error) {
	g := r.graph
	if entry, ok := g.packageReqs[req.String()]; ok {
		return entry.nv, nil
	}
	info, err := r.api.PackageInfo(ctx, req.Name)
	if err != nil {
		return npm.PackageNv{}, err
	}

	var best npm.PackageNv
	for _, nv := range g.sortedRootNvs() {
		if nv.Name != req.Name {
			continue
		}
		ok, err := r.versions.VersionReqSatisfies(req.Req, nv.Version, info)
		if err != nil || !ok {
			continue
		}
		if best.IsZero() || versionGreater(nv.Version, best.Version) {
			best = nv
		}
	}
	if !best.IsZero() {
		g.packageReqs[req.String()] = packageReqEntry{req: req, nv: best}
		return best, nil
	}

	vi, err := r.versions.ResolveBestVersionInfo(req.Req, info, g.versionsFor(req.Name))
	if err != nil {
		return npm.PackageNv{}, err
	}
	nv := npm.PackageNv{Name: req.Name, Version: vi.Version}
	if _, ok := g.rootPackages[nv]; !ok {
		_, nodeID := g.getOrCreateForID(resolvedID{nv: nv})
		g.rootPackages[nv] = nodeID
	}
	g.packageReqs[req.String()] = packageReqEntry{req: req, nv: nv}
	r.enqueue(newRootPath(g.rootPackages[nv], nv, modeAll))
	return nv, nil
}

// ResolvePending processes the work queue until the graph is stable.
// Discovering a newly resolvable optional peer re-traverses the roots,
// and when dedup is enabled a single consolidation pass runs once the
// queue settles.
func (r *Resolver) ResolvePending(ctx context.Context) error {
	dedupRan := false
	for {
		seenBefore := r.optionalPeers.seenCount
		for len(r.pending) > 0 {
			path := r.pending[0]
			r.pending = r.pending[1:]
			if err := r.resolveNextPending(ctx, path); err != nil {
				return err
			}
			if len(r.pending) == 0 && r.optionalPeers.seenCount > seenBefore {
				// An optional peer resolved somewhere; nodes that skipped
				// the same peer earlier get another look.
				seenBefore = r.optionalPeers.seenCount
				r.enqueueRoots(modeOptionalPeers)
			}
		}
		if r.dedupEnabled && !dedupRan {
			dedupRan = true
			if r.dedup() {
				continue
			}
		}
		return nil
	}
}

func (r *Resolver) enqueueRoots(mode traversalMode) {
	for _, nv := range r.graph.sortedRootNvs() {
		r.enqueue(newRootPath(r.graph.rootPackages[nv], nv, mode))
	}
}

func (r *Resolver) resolveNextPending(ctx context.Context, path *graphPath) error {
	g := r.graph
	if g.borrowNode(path.nodeID()).noPeers {
		return nil
	}
	entries, err := r.depEntries(ctx, path.nv)
	if err != nil {
		return err
	}
	infos, err := r.fetchEntryInfos(ctx, entries)
	if err != nil {
		return err
	}

	foundPeer := false
	for i, entry := range entries {
		info := infos[i]
		if info == nil {
			// Optional peer whose package does not exist; not an error.
			continue
		}
		if entry.Kind == registry.KindDep {
			childID, linked, err := r.analyzeDependency(entry, info, path)
			if err != nil {
				return err
			}
			if linked && !g.borrowNode(childID).noPeers {
				foundPeer = true
			}
			continue
		}
		foundPeer = true
		if err := r.resolvePeerDep(ctx, entry.BareSpecifier, entry, info, path); err != nil {
			return err
		}
	}
	if !foundPeer {
		g.borrowNode(path.nodeID()).noPeers = true
	}
	return nil
}

// fetchEntryInfos fetches registry metadata for every entry concurrently,
// preserving entry order. A missing package behind an optional peer entry
// yields a nil slot instead of an error.
func (r *Resolver) fetchEntryInfos(ctx context.Context, entries []*registry.DependencyEntry) ([]*registry.PackageInfo, error) {
	infos := make([]*registry.PackageInfo, len(entries))
	eg, ctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		i, entry := i, entry
		eg.Go(func() error {
			info, err := r.api.PackageInfo(ctx, entry.Name)
			if err != nil {
				if entry.Kind == registry.KindOptionalPeer && registry.IsNotFound(err) {
					return nil
				}
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

func (r *Resolver) depEntries(ctx context.Context, nv npm.PackageNv) ([]*registry.DependencyEntry, error) {
	key := nv.String()
	if entries, ok := r.depEntryCache[key]; ok {
		return entries, nil
	}
	vi, err := r.versionInfo(ctx, nv)
	if err != nil {
		return nil, err
	}
	entries, err := registry.ParseDependencies(vi)
	if err != nil {
		return nil, err
	}
	r.depEntryCache[key] = entries
	return entries, nil
}

func (r *Resolver) versionInfo(ctx context.Context, nv npm.PackageNv) (*registry.VersionInfo, error) {
	for _, vi := range r.versions.LinkPackages[nv.Name] {
		if vi.Version == nv.Version {
			return vi, nil
		}
	}
	info, err := r.api.PackageInfo(ctx, nv.Name)
	if err != nil {
		return nil, err
	}
	if vi, ok := info.Versions[nv.Version]; ok {
		return vi, nil
	}
	return nil, registry.VersionNotFound(nv.Name, nv.Version)
}

// analyzeDependency resolves one regular dependency entry of the node at
// path. It returns the child node and whether an edge was established; a
// self-dependency establishes nothing and is silently dropped.
func (r *Resolver) analyzeDependency(entry *registry.DependencyEntry, info *registry.PackageInfo, path *graphPath) (NodeID, bool, error) {
	g := r.graph
	parentID := path.nodeID()

	if childID, ok := g.borrowNode(parentID).children[entry.BareSpecifier]; ok {
		// Another path through this shared node already resolved the
		// edge; follow it rather than re-resolving the version.
		childNv := g.mustResolvedID(childID).nv
		if ancestor := path.findAncestor(childNv); ancestor != nil {
			r.linkCircular(ancestor, path, entry.BareSpecifier, childNv)
			return ancestor.nodeID(), true, nil
		}
		r.enqueue(path.withChild(entry.BareSpecifier, childID, childNv))
		return childID, true, nil
	}

	vi, err := r.versions.ResolveBestVersionInfo(entry.VersionReq, info, g.versionsFor(entry.Name))
	if err != nil {
		return 0, false, err
	}
	childNv := npm.PackageNv{Name: entry.Name, Version: vi.Version}
	if childNv == path.nv {
		// A package listing itself as a dependency gets no edge.
		return 0, false, nil
	}
	if ancestor := path.findAncestor(childNv); ancestor != nil {
		r.linkCircular(ancestor, path, entry.BareSpecifier, childNv)
		return ancestor.nodeID(), true, nil
	}
	_, childID := g.getOrCreateForID(resolvedID{nv: childNv})
	g.setChildOfParentNode(parentID, entry.BareSpecifier, childID)
	r.enqueue(path.withChild(entry.BareSpecifier, childID, childNv))
	return childID, true, nil
}

// linkCircular wires a dependency edge that loops back to an ancestor.
// The edge targets the ancestor's current node, and the descendant path
// shares the ancestor's node ref so later identity rewrites keep every
// circular reference pointing at the right node.
func (r *Resolver) linkCircular(ancestor, parent *graphPath, specifier string, childNv npm.PackageNv) {
	descendant := parent.withSharedRef(specifier, ancestor.nodeRef, childNv)
	r.graph.setChildOfParentNode(parent.nodeID(), specifier, ancestor.nodeID())
	ancestor.addLinkedCircularDescendant(descendant)
}

func versionGreater(a, b string) bool {
	av, errA := semver.NewVersion(a)
	bv, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a > b
	}
	return av.GreaterThan(bv)
}

// Resolve expands the requirements against the registry and returns the
// finished snapshot along with any unmet peer diagnostics.
func Resolve(ctx context.Context, api registry.API, reqs []npm.PackageReq, opts ...ResolverOption) (*snapshot.Snapshot, []UnmetPeerDiagnostic, error) {
	return ResolveWithSnapshot(ctx, api, nil, reqs, opts...)
}

// ResolveWithSnapshot is like [Resolve] but seeds the graph from a
// previous snapshot, keeping prior version choices and copy indices
// stable where requirements allow.
func ResolveWithSnapshot(ctx context.Context, api registry.API, previous *snapshot.Snapshot, reqs []npm.PackageReq, opts ...ResolverOption) (*snapshot.Snapshot, []UnmetPeerDiagnostic, error) {
	observability.Resolver().OnResolveStart(ctx, len(reqs))
	start := time.Now()

	var g *Graph
	var err error
	if previous != nil {
		g, err = FromSnapshot(previous)
		if err != nil {
			observability.Resolver().OnResolveComplete(ctx, 0, time.Since(start), err)
			return nil, nil, err
		}
	} else {
		g = NewGraph()
	}
	r := NewResolver(g, api, opts...)
	for _, req := range reqs {
		if _, err := r.AddPackageReq(ctx, req); err != nil {
			observability.Resolver().OnResolveComplete(ctx, 0, time.Since(start), err)
			return nil, nil, err
		}
	}
	if err := r.ResolvePending(ctx); err != nil {
		observability.Resolver().OnResolveComplete(ctx, 0, time.Since(start), err)
		return nil, nil, err
	}
	snap, err := g.IntoSnapshot(ctx, api, r.LinkPackages())
	if err != nil {
		observability.Resolver().OnResolveComplete(ctx, 0, time.Since(start), err)
		return nil, nil, err
	}
	observability.Resolver().OnResolveComplete(ctx, len(snap.Packages), time.Since(start), nil)
	return snap, g.UnmetPeerDiagnostics(), nil
}
