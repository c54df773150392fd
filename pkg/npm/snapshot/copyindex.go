package snapshot

import "github.com/depstack/depstack/pkg/npm"

// CopyIndexResolver assigns copy indices to package ids. Within one
// resolver the same id always gets the same index, and distinct ids
// sharing a name+version get distinct indices. Seeding with a previous
// snapshot's assignments keeps indices stable across resolutions.
type CopyIndexResolver struct {
	indexes map[string]int
	next    map[npm.PackageNv]int
}

// NewCopyIndexResolver creates an empty resolver.
func NewCopyIndexResolver() *CopyIndexResolver {
	return &CopyIndexResolver{
		indexes: make(map[string]int),
		next:    make(map[npm.PackageNv]int),
	}
}

// Seed records an existing assignment. The per-name+version counter
// advances past it so fresh ids never collide with seeded ones.
func (r *CopyIndexResolver) Seed(id *npm.PackageID, index int) {
	r.indexes[id.String()] = index
	if index >= r.next[id.Nv] {
		r.next[id.Nv] = index + 1
	}
}

// Resolve returns the index for id, assigning the next free index for its
// name+version on first sight.
func (r *CopyIndexResolver) Resolve(id *npm.PackageID) int {
	key := id.String()
	if index, ok := r.indexes[key]; ok {
		return index
	}
	index := r.next[id.Nv]
	r.next[id.Nv] = index + 1
	r.indexes[key] = index
	return index
}
