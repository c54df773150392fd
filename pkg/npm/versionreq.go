package npm

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// VersionReq is a parsed npm version requirement. It is either a semver
// range ("^1.2", ">=2 <3", "1.x") or a dist-tag ("latest", "next"). npm
// treats any specifier that does not parse as a range as a dist-tag, and
// this type mirrors that behavior.
type VersionReq struct {
	raw   string
	tag   string
	inner *semver.Constraints
}

// ParseVersionReq parses an npm version requirement. An empty specifier is
// equivalent to "*".
func ParseVersionReq(s string) (*VersionReq, error) {
	raw := strings.TrimSpace(s)
	spec := raw
	if spec == "" {
		spec = "*"
	}
	if c, err := semver.NewConstraint(spec); err == nil {
		return &VersionReq{raw: raw, inner: c}, nil
	}
	// Not a range, so it must be a dist-tag like "latest" or "beta".
	return &VersionReq{raw: raw, tag: raw}, nil
}

// MustParseVersionReq is like [ParseVersionReq] but panics on error.
// Intended for tests and static initialization.
func MustParseVersionReq(s string) *VersionReq {
	req, err := ParseVersionReq(s)
	if err != nil {
		panic(err)
	}
	return req
}

// String returns the original specifier text ("*" for an empty one).
func (r *VersionReq) String() string {
	if r.raw == "" {
		return "*"
	}
	return r.raw
}

// Tag returns the dist-tag and true when the requirement is a dist-tag
// rather than a range.
func (r *VersionReq) Tag() (string, bool) {
	return r.tag, r.tag != ""
}

// Matches reports whether the version satisfies the range. Dist-tag
// requirements match nothing here; they are resolved against the
// registry's dist-tags map instead.
func (r *VersionReq) Matches(v *semver.Version) bool {
	if r.tag != "" || r.inner == nil {
		return false
	}
	return r.inner.Check(v)
}

// MatchesString parses version and reports whether it satisfies the range.
func (r *VersionReq) MatchesString(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return r.Matches(v)
}
