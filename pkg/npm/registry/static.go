package registry

import (
	"context"
	"sync"

	"github.com/depstack/depstack/pkg/errors"
)

// StaticRegistry implements [API] from in-memory package data. Tests build
// registry fixtures with it, and the resolve pipeline uses it to overlay
// linked packages on top of a real registry.
type StaticRegistry struct {
	mu          sync.Mutex
	packages    map[string]*PackageInfo
	forceReload bool
}

// NewStaticRegistry creates an empty in-memory registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{packages: make(map[string]*PackageInfo)}
}

// Package returns the info for name, creating an empty document on first
// use. The returned pointer is live: mutations are visible to lookups.
func (r *StaticRegistry) Package(name string) *PackageInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.packages[name]
	if !ok {
		info = &PackageInfo{
			Name:     name,
			DistTags: make(map[string]string),
			Versions: make(map[string]*VersionInfo),
		}
		r.packages[name] = info
	}
	return info
}

// AddPackage registers a version of a package, creating the package
// document as needed, and returns the version info for further mutation.
func (r *StaticRegistry) AddPackage(name, version string) *VersionInfo {
	info := r.Package(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := info.Versions[version]
	if !ok {
		v = &VersionInfo{Version: version}
		info.Versions[version] = v
	}
	return v
}

// AddDependency adds a regular dependency to an existing version.
func (r *StaticRegistry) AddDependency(name, version, depName, depReq string) {
	v := r.AddPackage(name, version)
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.Dependencies == nil {
		v.Dependencies = make(map[string]string)
	}
	v.Dependencies[depName] = depReq
}

// AddPeerDependency adds a required peer dependency to an existing version.
func (r *StaticRegistry) AddPeerDependency(name, version, peerName, peerReq string) {
	v := r.AddPackage(name, version)
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.PeerDependencies == nil {
		v.PeerDependencies = make(map[string]string)
	}
	v.PeerDependencies[peerName] = peerReq
}

// AddOptionalPeerDependency adds a peer dependency marked optional.
func (r *StaticRegistry) AddOptionalPeerDependency(name, version, peerName, peerReq string) {
	r.AddPeerDependency(name, version, peerName, peerReq)
	v := r.AddPackage(name, version)
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.PeerDependenciesMeta == nil {
		v.PeerDependenciesMeta = make(map[string]PeerDepMeta)
	}
	v.PeerDependenciesMeta[peerName] = PeerDepMeta{Optional: true}
}

// AddDistTag maps a dist-tag to a version.
func (r *StaticRegistry) AddDistTag(name, tag, version string) {
	info := r.Package(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	info.DistTags[tag] = version
}

// PackageInfo implements [API].
func (r *StaticRegistry) PackageInfo(ctx context.Context, name string) (*PackageInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.packages[name]; ok {
		return info, nil
	}
	return nil, errors.New(errors.ErrCodePackageNotFound, "npm package %q does not exist", name)
}

// MarkForceReload implements [API]. There is nothing to reload, but the
// one-shot contract still holds so resolution retry logic can be tested.
func (r *StaticRegistry) MarkForceReload() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceReload {
		return false
	}
	r.forceReload = true
	return true
}

var _ API = (*StaticRegistry)(nil)
