// Package registry provides access to npm registry package metadata.
//
// The [API] interface is what dependency resolution consumes: an async,
// cacheable, idempotent lookup of a package's version and dependency
// metadata, plus a one-shot force-reload signal used when a lockfile
// references versions the cached metadata no longer knows about.
//
// [Client] implements API against a real registry over HTTP with caching
// and retries. [StaticRegistry] implements it from in-memory data and is
// used by tests and linked-package overrides.
package registry

import (
	"context"
	"encoding/json"

	"github.com/depstack/depstack/pkg/errors"
)

// API is the registry capability consumed by dependency resolution.
type API interface {
	// PackageInfo returns the full metadata document for a package name.
	// Implementations are expected to cache: resolution calls this many
	// times for the same name. Returns an error with code
	// PACKAGE_NOT_FOUND when the package does not exist.
	PackageInfo(ctx context.Context, name string) (*PackageInfo, error)

	// MarkForceReload asks the registry to drop cached data so stale
	// version lists can be refetched. It returns true the first time it
	// is called and false afterwards: the contract promises callers at
	// most one reload per resolution.
	MarkForceReload() bool
}

// PackageInfo is the registry document for one package name.
type PackageInfo struct {
	Name     string                  `json:"name"`
	DistTags map[string]string       `json:"dist-tags"`
	Versions map[string]*VersionInfo `json:"versions"`
}

// VersionInfo is the metadata for a single published version.
type VersionInfo struct {
	Version              string                 `json:"version"`
	Dependencies         map[string]string      `json:"dependencies,omitempty"`
	OptionalDependencies map[string]string      `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string      `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]PeerDepMeta `json:"peerDependenciesMeta,omitempty"`
	OS                   []string               `json:"os,omitempty"`
	CPU                  []string               `json:"cpu,omitempty"`
	Bin                  json.RawMessage        `json:"bin,omitempty"`
	Scripts              map[string]string      `json:"scripts,omitempty"`
	Deprecated           *string                `json:"deprecated,omitempty"`
	Dist                 *DistInfo              `json:"dist,omitempty"`
}

// PeerDepMeta is the peerDependenciesMeta entry for one peer dependency.
type PeerDepMeta struct {
	Optional bool `json:"optional"`
}

// DistInfo describes the tarball for a published version.
type DistInfo struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum,omitempty"`
	Integrity string `json:"integrity,omitempty"`
}

// HasBin reports whether the version declares executables.
func (v *VersionInfo) HasBin() bool {
	return len(v.Bin) > 0 && string(v.Bin) != "null"
}

// HasInstallScript reports whether the version runs lifecycle scripts on
// install (preinstall, install, or postinstall).
func (v *VersionInfo) HasInstallScript() bool {
	for _, name := range []string{"preinstall", "install", "postinstall"} {
		if _, ok := v.Scripts[name]; ok {
			return true
		}
	}
	return false
}

// VersionNotFound builds the error returned when a requirement cannot be
// satisfied by any published version.
func VersionNotFound(name, requirement string) error {
	return errors.New(errors.ErrCodeVersionNotFound, "could not find version matching %s@%s", name, requirement)
}

// IsNotFound reports whether err is a package-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, errors.ErrCodePackageNotFound)
}
