package registry

import (
	"sort"
	"strings"

	"github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/npm"
)

// DepKind classifies a dependency entry.
type DepKind int

const (
	// KindDep is a regular (or optional) dependency.
	KindDep DepKind = iota
	// KindPeer is a required peer dependency.
	KindPeer
	// KindOptionalPeer is a peer dependency flagged optional in
	// peerDependenciesMeta.
	KindOptionalPeer
)

// DependencyEntry is one parsed dependency of a package version.
type DependencyEntry struct {
	Kind DepKind
	// BareSpecifier is the key in the package's dependency map, which is
	// also the name the dependency is imported by.
	BareSpecifier string
	// Name is the real package name, which differs from BareSpecifier for
	// "npm:other-name@req" aliases.
	Name       string
	VersionReq *npm.VersionReq
	// PeerDepVersionReq holds the declared peer range when the same name
	// appears in both dependencies and peerDependencies; VersionReq then
	// carries the regular dependency's range.
	PeerDepVersionReq *npm.VersionReq
}

// PeerReq returns the range a peer candidate must satisfy.
func (e *DependencyEntry) PeerReq() *npm.VersionReq {
	if e.PeerDepVersionReq != nil {
		return e.PeerDepVersionReq
	}
	return e.VersionReq
}

// IsPeer reports whether the entry is a peer dependency of either kind.
func (e *DependencyEntry) IsPeer() bool {
	return e.Kind == KindPeer || e.Kind == KindOptionalPeer
}

// unsupportedPrefixes are dependency specifiers resolution cannot handle.
// These abort resolution immediately rather than being skipped.
var unsupportedPrefixes = []string{
	"git:", "git+", "github:", "http:", "https:", "file:", "link:", "workspace:",
}

// parseDepSpecifier splits a dependency map value into the target package
// name and version requirement, handling "npm:" aliases.
func parseDepSpecifier(bareSpecifier, value string) (string, *npm.VersionReq, error) {
	for _, prefix := range unsupportedPrefixes {
		if strings.HasPrefix(value, prefix) {
			return "", nil, errors.New(errors.ErrCodeUnsupportedSpecifier,
				"unsupported specifier %q for dependency %q", value, bareSpecifier)
		}
	}
	name := bareSpecifier
	spec := value
	if rest, ok := strings.CutPrefix(value, "npm:"); ok {
		// npm:name or npm:name@req, where name may be scoped.
		searchStart := 0
		if strings.HasPrefix(rest, "@") {
			searchStart = 1
		}
		if at := strings.IndexByte(rest[searchStart:], '@'); at >= 0 {
			name = rest[:searchStart+at]
			spec = rest[searchStart+at+1:]
		} else {
			name = rest
			spec = "*"
		}
		if name == "" {
			return "", nil, errors.New(errors.ErrCodeUnsupportedSpecifier,
				"invalid npm alias %q for dependency %q", value, bareSpecifier)
		}
	}
	req, err := npm.ParseVersionReq(spec)
	if err != nil {
		return "", nil, err
	}
	return name, req, nil
}

// ParseDependencies converts a version's dependency maps into a sorted
// entry list. Peer dependencies that also appear as regular dependencies
// become a single peer entry carrying both ranges. The sort order (name
// ascending, requirement descending, specifier ascending) makes peer
// resolution deterministic regardless of registry response ordering.
func ParseDependencies(info *VersionInfo) ([]*DependencyEntry, error) {
	entries := make([]*DependencyEntry, 0, len(info.Dependencies)+len(info.OptionalDependencies)+len(info.PeerDependencies))
	regular := make(map[string]*DependencyEntry)

	addDep := func(bare, value string) error {
		name, req, err := parseDepSpecifier(bare, value)
		if err != nil {
			return err
		}
		entry := &DependencyEntry{
			Kind:          KindDep,
			BareSpecifier: bare,
			Name:          name,
			VersionReq:    req,
		}
		regular[bare] = entry
		entries = append(entries, entry)
		return nil
	}

	for bare, value := range info.Dependencies {
		// optionalDependencies take precedence over dependencies for the
		// same key; skip here and pick the optional value up below.
		if _, ok := info.OptionalDependencies[bare]; ok {
			continue
		}
		if err := addDep(bare, value); err != nil {
			return nil, err
		}
	}
	for bare, value := range info.OptionalDependencies {
		if err := addDep(bare, value); err != nil {
			return nil, err
		}
	}

	for bare, value := range info.PeerDependencies {
		name, req, err := parseDepSpecifier(bare, value)
		if err != nil {
			return nil, err
		}
		kind := KindPeer
		if meta, ok := info.PeerDependenciesMeta[bare]; ok && meta.Optional {
			kind = KindOptionalPeer
		}
		if existing, ok := regular[bare]; ok {
			// Declared both ways: resolve with the regular range, check
			// peers against the peer range.
			existing.Kind = kind
			existing.PeerDepVersionReq = req
			continue
		}
		entries = append(entries, &DependencyEntry{
			Kind:          kind,
			BareSpecifier: bare,
			Name:          name,
			VersionReq:    req,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if ar, br := a.VersionReq.String(), b.VersionReq.String(); ar != br {
			return ar > br
		}
		return a.BareSpecifier < b.BareSpecifier
	})
	return entries, nil
}
