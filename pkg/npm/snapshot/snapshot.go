// Package snapshot holds the immutable result of a dependency resolution:
// every resolved package keyed by its final package id, the root packages,
// and the requirement-to-version mapping. Snapshots serialize to a
// deterministic lockfile and can be loaded back to seed a later resolution.
package snapshot

import (
	"github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/registry"
)

// ResolvedPackage is one installed copy of a package in a snapshot.
type ResolvedPackage struct {
	ID *npm.PackageID

	// CopyIndex disambiguates physical install locations when the same
	// name+version appears with different peer sets. It is stable across
	// snapshots for an unchanged id.
	CopyIndex int

	// Dependencies maps bare specifiers to the resolved package ids. Peer
	// dependency edges are included here.
	Dependencies map[string]*npm.PackageID

	// OptionalDependencies lists the specifiers that came from
	// optionalDependencies and may fail to install.
	OptionalDependencies map[string]struct{}

	// OptionalPeers lists the specifiers of optional peer dependencies
	// that were resolved. An unresolved optional peer leaves no trace.
	OptionalPeers map[string]struct{}

	OS  []string
	CPU []string

	HasBin           bool
	HasInstallScript bool
	Deprecated       *string
	Dist             *registry.DistInfo
}

// Snapshot is the queryable output of a resolution.
type Snapshot struct {
	// RootPackages maps a root package's name@version to its full id.
	RootPackages map[string]*npm.PackageID

	// PackageReqs maps a requirement (name@range) to the name@version it
	// resolved to.
	PackageReqs map[string]npm.PackageNv

	// Packages holds every resolved package keyed by serialized id.
	Packages map[string]*ResolvedPackage
}

// New creates an empty snapshot.
func New() *Snapshot {
	return &Snapshot{
		RootPackages: make(map[string]*npm.PackageID),
		PackageReqs:  make(map[string]npm.PackageNv),
		Packages:     make(map[string]*ResolvedPackage),
	}
}

// Package looks up a resolved package by id.
func (s *Snapshot) Package(id *npm.PackageID) (*ResolvedPackage, bool) {
	pkg, ok := s.Packages[id.String()]
	return pkg, ok
}

// RootPackage returns the full id for a root name@version.
func (s *Snapshot) RootPackage(nv npm.PackageNv) (*npm.PackageID, bool) {
	id, ok := s.RootPackages[nv.String()]
	return id, ok
}

// CopyIndexes returns the id-to-copy-index assignments, used to carry
// indices forward into the next resolution.
func (s *Snapshot) CopyIndexes() map[string]int {
	out := make(map[string]int, len(s.Packages))
	for id, pkg := range s.Packages {
		out[id] = pkg.CopyIndex
	}
	return out
}

// Verify checks internal consistency: every root id and every dependency
// edge must point at a package present in the table.
func (s *Snapshot) Verify() error {
	for nv, id := range s.RootPackages {
		if _, ok := s.Packages[id.String()]; !ok {
			return errors.New(errors.ErrCodeInvalidLockfile, "root package %s points at missing id %s", nv, id)
		}
	}
	for id, pkg := range s.Packages {
		if pkg.ID == nil || pkg.ID.String() != id {
			return errors.New(errors.ErrCodeInvalidLockfile, "package table key %s does not match its id", id)
		}
		for specifier, dep := range pkg.Dependencies {
			if _, ok := s.Packages[dep.String()]; !ok {
				return errors.New(errors.ErrCodeInvalidLockfile, "%s depends on missing id %s via %q", id, dep, specifier)
			}
		}
	}
	return nil
}
