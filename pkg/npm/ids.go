package npm

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/depstack/depstack/pkg/errors"
)

// PackageNv is a package name paired with an exact version.
// The version string is kept in its registry form; use [PackageNv.SemVer]
// to obtain a parsed version for comparisons.
type PackageNv struct {
	Name    string
	Version string
}

// String returns the "name@version" form.
func (nv PackageNv) String() string {
	return nv.Name + "@" + nv.Version
}

// IsZero reports whether the value is the zero PackageNv.
func (nv PackageNv) IsZero() bool {
	return nv.Name == "" && nv.Version == ""
}

// SemVer parses the version component.
func (nv PackageNv) SemVer() (*semver.Version, error) {
	v, err := semver.NewVersion(nv.Version)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPackageID, err, "invalid version in %s", nv)
	}
	return v, nil
}

// ParsePackageNv parses a "name@version" string. Package names may contain
// "@" themselves (scoped packages like "@types/node"), so the split happens
// at the last "@".
func ParsePackageNv(s string) (PackageNv, error) {
	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return PackageNv{}, errors.New(errors.ErrCodeInvalidPackageID, "invalid package name and version: %q", s)
	}
	nv := PackageNv{Name: s[:at], Version: s[at+1:]}
	if nv.Version == "" {
		return PackageNv{}, errors.New(errors.ErrCodeInvalidPackageID, "missing version: %q", s)
	}
	return nv, nil
}

// PackageReq is a root-level package requirement: a name plus a version
// requirement (range or dist-tag).
type PackageReq struct {
	Name string
	Req  *VersionReq
}

// ParsePackageReq parses "name", "name@range", or "name@tag". A bare name
// is equivalent to "name@*".
func ParsePackageReq(s string) (PackageReq, error) {
	name := s
	spec := ""
	// Skip a leading "@" so scoped names split at the version separator.
	searchStart := 0
	if strings.HasPrefix(s, "@") {
		searchStart = 1
	}
	if at := strings.IndexByte(s[searchStart:], '@'); at >= 0 {
		name = s[:searchStart+at]
		spec = s[searchStart+at+1:]
	}
	if name == "" {
		return PackageReq{}, errors.New(errors.ErrCodeInvalidInput, "invalid package requirement: %q", s)
	}
	req, err := ParseVersionReq(spec)
	if err != nil {
		return PackageReq{}, err
	}
	return PackageReq{Name: name, Req: req}, nil
}

// String returns the "name@requirement" form used as the lockfile key.
func (r PackageReq) String() string {
	return r.Name + "@" + r.Req.String()
}
