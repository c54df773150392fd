package snapshot

import (
	"encoding/json"
	"sort"

	"github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/registry"
)

// LockfileVersion is the current on-disk format version.
const LockfileVersion = 1

type lockfile struct {
	Version    int                    `json:"version"`
	Specifiers map[string]string      `json:"specifiers,omitempty"`
	Roots      map[string]string      `json:"roots,omitempty"`
	Packages   map[string]lockPackage `json:"packages,omitempty"`
}

type lockPackage struct {
	CopyIndex            int                `json:"copyIndex,omitempty"`
	Dependencies         map[string]string  `json:"dependencies,omitempty"`
	OptionalDependencies []string           `json:"optionalDependencies,omitempty"`
	OptionalPeers        []string           `json:"optionalPeers,omitempty"`
	OS                   []string           `json:"os,omitempty"`
	CPU                  []string           `json:"cpu,omitempty"`
	HasBin               bool               `json:"hasBin,omitempty"`
	HasInstallScript     bool               `json:"hasInstallScript,omitempty"`
	Deprecated           *string            `json:"deprecated,omitempty"`
	Dist                 *registry.DistInfo `json:"dist,omitempty"`
}

// MarshalLockfile serializes the snapshot to the lockfile format. The
// output is deterministic: map keys are emitted sorted and set-valued
// fields are sorted slices.
func (s *Snapshot) MarshalLockfile() ([]byte, error) {
	lf := lockfile{
		Version:    LockfileVersion,
		Specifiers: make(map[string]string, len(s.PackageReqs)),
		Roots:      make(map[string]string, len(s.RootPackages)),
		Packages:   make(map[string]lockPackage, len(s.Packages)),
	}
	for req, nv := range s.PackageReqs {
		lf.Specifiers[req] = nv.String()
	}
	for nv, id := range s.RootPackages {
		lf.Roots[nv] = id.String()
	}
	for id, pkg := range s.Packages {
		lp := lockPackage{
			CopyIndex:            pkg.CopyIndex,
			OptionalDependencies: sortedSet(pkg.OptionalDependencies),
			OptionalPeers:        sortedSet(pkg.OptionalPeers),
			OS:                   sortedCopy(pkg.OS),
			CPU:                  sortedCopy(pkg.CPU),
			HasBin:               pkg.HasBin,
			HasInstallScript:     pkg.HasInstallScript,
			Deprecated:           pkg.Deprecated,
			Dist:                 pkg.Dist,
		}
		if len(pkg.Dependencies) > 0 {
			lp.Dependencies = make(map[string]string, len(pkg.Dependencies))
			for specifier, dep := range pkg.Dependencies {
				lp.Dependencies[specifier] = dep.String()
			}
		}
		lf.Packages[id] = lp
	}
	return json.MarshalIndent(lf, "", "  ")
}

// ParseLockfile loads a snapshot from lockfile bytes and verifies its
// internal consistency.
func ParseLockfile(data []byte) (*Snapshot, error) {
	var lf lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "parsing lockfile")
	}
	if lf.Version != LockfileVersion {
		return nil, errors.New(errors.ErrCodeInvalidLockfile, "unsupported lockfile version %d", lf.Version)
	}

	s := New()
	for req, nvStr := range lf.Specifiers {
		nv, err := npm.ParsePackageNv(nvStr)
		if err != nil {
			return nil, err
		}
		s.PackageReqs[req] = nv
	}
	for nvStr, idStr := range lf.Roots {
		id, err := npm.ParsePackageID(idStr)
		if err != nil {
			return nil, err
		}
		s.RootPackages[nvStr] = id
	}
	for idStr, lp := range lf.Packages {
		id, err := npm.ParsePackageID(idStr)
		if err != nil {
			return nil, err
		}
		pkg := &ResolvedPackage{
			ID:               id,
			CopyIndex:        lp.CopyIndex,
			OS:               lp.OS,
			CPU:              lp.CPU,
			HasBin:           lp.HasBin,
			HasInstallScript: lp.HasInstallScript,
			Deprecated:       lp.Deprecated,
			Dist:             lp.Dist,
		}
		if len(lp.Dependencies) > 0 {
			pkg.Dependencies = make(map[string]*npm.PackageID, len(lp.Dependencies))
			for specifier, depStr := range lp.Dependencies {
				dep, err := npm.ParsePackageID(depStr)
				if err != nil {
					return nil, err
				}
				pkg.Dependencies[specifier] = dep
			}
		}
		pkg.OptionalDependencies = toSet(lp.OptionalDependencies)
		pkg.OptionalPeers = toSet(lp.OptionalPeers)
		s.Packages[idStr] = pkg
	}
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return s, nil
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
