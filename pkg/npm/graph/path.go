package graph

import (
	"fmt"

	"github.com/depstack/depstack/pkg/npm"
)

type traversalMode int

const (
	// modeAll resolves every dependency kind.
	modeAll traversalMode = iota
	// modeOptionalPeers re-traverses solely to pick up optional peers
	// that were unresolved on an earlier pass; already-resolved required
	// peers are left alone.
	modeOptionalPeers
)

// nodeIDRef is the one mutable cell in an otherwise immutable path: the
// node a path currently targets can be redirected when peer attachment
// re-identifies it, and every live path holding the ref must see the new
// id.
type nodeIDRef struct {
	id NodeID
}

// graphPath is one edge of an in-progress traversal: the specifier that
// was followed, the name+version it resolved to, and a back-link to the
// previous path node. Nodes are shared across many live paths, so
// ancestor information lives here rather than on nodes.
type graphPath struct {
	// previous is nil for a root path.
	previous  *graphPath
	nodeRef   *nodeIDRef
	specifier string
	nv        npm.PackageNv
	// rootNv is the root package this path descends from.
	rootNv npm.PackageNv
	mode   traversalMode

	// linkedCircularDescendants are paths whose edge loops back to this
	// node. They share this path's nodeRef so they always point at the
	// node's current id, and identity rewrites propagate through them.
	linkedCircularDescendants []*graphPath
}

func newRootPath(nodeID NodeID, nv npm.PackageNv, mode traversalMode) *graphPath {
	return &graphPath{
		nodeRef: &nodeIDRef{id: nodeID},
		nv:      nv,
		rootNv:  nv,
		mode:    mode,
	}
}

// withChild extends the path by one edge to a fresh node ref.
func (p *graphPath) withChild(specifier string, nodeID NodeID, nv npm.PackageNv) *graphPath {
	return &graphPath{
		previous:  p,
		nodeRef:   &nodeIDRef{id: nodeID},
		specifier: specifier,
		nv:        nv,
		rootNv:    p.rootNv,
		mode:      p.mode,
	}
}

// withSharedRef extends the path by one edge that shares an existing
// node ref, used for circular edges that must track an ancestor's
// current node id.
func (p *graphPath) withSharedRef(specifier string, ref *nodeIDRef, nv npm.PackageNv) *graphPath {
	return &graphPath{
		previous:  p,
		nodeRef:   ref,
		specifier: specifier,
		nv:        nv,
		rootNv:    p.rootNv,
		mode:      p.mode,
	}
}

func (p *graphPath) nodeID() NodeID {
	return p.nodeRef.id
}

func (p *graphPath) changeID(id NodeID) {
	p.nodeRef.id = id
}

func (p *graphPath) isRoot() bool {
	return p.previous == nil
}

// findAncestor walks the back-link chain for the first path node whose
// resolved name+version matches, which signals that following an edge to
// nv would be circular.
func (p *graphPath) findAncestor(nv npm.PackageNv) *graphPath {
	for cur := p.previous; cur != nil; cur = cur.previous {
		if cur.nv == nv {
			return cur
		}
	}
	return nil
}

// pathToAncestorExclusive collects path nodes from this one up to, but
// not including, the node currently identified by ancestorNodeID. The
// ancestor must be on the path; anything else is a resolver bug.
func (p *graphPath) pathToAncestorExclusive(ancestorNodeID NodeID) []*graphPath {
	var chain []*graphPath
	for cur := p; cur != nil; cur = cur.previous {
		if cur.nodeID() == ancestorNodeID {
			return chain
		}
		chain = append(chain, cur)
	}
	panic(fmt.Sprintf("node %d is not an ancestor of this path", ancestorNodeID))
}

func (p *graphPath) addLinkedCircularDescendant(descendant *graphPath) {
	p.linkedCircularDescendants = append(p.linkedCircularDescendants, descendant)
}

// ancestorNvs returns the name@version chain from the root down to this
// path node, for diagnostics.
func (p *graphPath) ancestorNvs() []string {
	var reversed []string
	for cur := p; cur != nil; cur = cur.previous {
		reversed = append(reversed, cur.nv.String())
	}
	out := make([]string, len(reversed))
	for i, nv := range reversed {
		out[len(reversed)-1-i] = nv
	}
	return out
}
