// Package version selects concrete package versions for requirements.
//
// It is a thin wrapper over semver range matching with two npm-specific
// behaviors layered on top: dist-tag resolution ("latest", "next", ...)
// and a preference for versions that are already in use, which keeps a
// dependency graph from growing needless duplicate versions.
package version

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/registry"
)

// Resolver picks the best version for a requirement.
type Resolver struct {
	// LinkPackages maps package names to synthetic version infos that
	// take priority over registry-fetched data. Used for local/linked
	// packages.
	LinkPackages map[string][]*registry.VersionInfo
}

// VersionReqSatisfies reports whether an exact version satisfies the
// requirement. Dist-tag requirements satisfy exactly the version the tag
// currently points at.
func (r *Resolver) VersionReqSatisfies(req *npm.VersionReq, version string, info *registry.PackageInfo) (bool, error) {
	if tag, ok := req.Tag(); ok {
		tagVersion, err := r.resolveTag(tag, info)
		if err != nil {
			return false, err
		}
		return tagVersion == version, nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeInvalidPackage, err, "invalid version %q for %s", version, info.Name)
	}
	return req.Matches(v), nil
}

// ResolveBestVersionInfo returns the version info the requirement should
// resolve to. Already-used versions (existingVersions) are preferred over
// anything else that satisfies the requirement; among candidates the
// highest version wins. Linked packages shadow registry data entirely.
func (r *Resolver) ResolveBestVersionInfo(req *npm.VersionReq, info *registry.PackageInfo, existingVersions []string) (*registry.VersionInfo, error) {
	if linked, ok := r.LinkPackages[info.Name]; ok {
		if v := bestMatch(req, linked); v != nil {
			return v, nil
		}
	}

	if tag, ok := req.Tag(); ok {
		tagVersion, err := r.resolveTag(tag, info)
		if err != nil {
			return nil, err
		}
		v, ok := info.Versions[tagVersion]
		if !ok {
			return nil, registry.VersionNotFound(info.Name, tagVersion)
		}
		return v, nil
	}

	if best := highestSatisfying(req, existingVersions); best != "" {
		if v, ok := info.Versions[best]; ok {
			return v, nil
		}
	}

	candidates := make([]*registry.VersionInfo, 0, len(info.Versions))
	for _, v := range info.Versions {
		candidates = append(candidates, v)
	}
	if v := bestMatch(req, candidates); v != nil {
		return v, nil
	}
	return nil, registry.VersionNotFound(info.Name, req.String())
}

func (r *Resolver) resolveTag(tag string, info *registry.PackageInfo) (string, error) {
	if version, ok := info.DistTags[tag]; ok {
		return version, nil
	}
	return "", errors.New(errors.ErrCodeTagNotFound, "dist-tag %q does not exist for %s", tag, info.Name)
}

// bestMatch returns the highest candidate whose version satisfies req.
func bestMatch(req *npm.VersionReq, candidates []*registry.VersionInfo) *registry.VersionInfo {
	var best *registry.VersionInfo
	var bestVersion *semver.Version
	for _, candidate := range candidates {
		v, err := semver.NewVersion(candidate.Version)
		if err != nil || !req.Matches(v) {
			continue
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			best, bestVersion = candidate, v
		}
	}
	return best
}

// highestSatisfying returns the highest version string from versions that
// satisfies req, or "" when none does.
func highestSatisfying(req *npm.VersionReq, versions []string) string {
	parsed := make([]*semver.Version, 0, len(versions))
	byString := make(map[*semver.Version]string, len(versions))
	for _, s := range versions {
		v, err := semver.NewVersion(s)
		if err != nil {
			continue
		}
		parsed = append(parsed, v)
		byString[v] = s
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].GreaterThan(parsed[j]) })
	for _, v := range parsed {
		if req.Matches(v) {
			return byString[v]
		}
	}
	return ""
}
