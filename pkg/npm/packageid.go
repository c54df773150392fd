package npm

import (
	"strings"

	"github.com/depstack/depstack/pkg/errors"
)

// PackageID identifies one resolved copy of a package: its name+version
// plus the ordered list of peer dependency ids attached to it. The order
// of peers is resolution order and is significant for serialization.
type PackageID struct {
	Nv    PackageNv
	Peers []*PackageID
}

// NewPackageID returns an id with no peers.
func NewPackageID(nv PackageNv) *PackageID {
	return &PackageID{Nv: nv}
}

// String returns the serialized id. See the package documentation for the
// exact shape; this encoding is stored in lockfiles and must not change.
func (id *PackageID) String() string {
	var sb strings.Builder
	id.writeSerialized(&sb, 0)
	return sb.String()
}

func (id *PackageID) writeSerialized(sb *strings.Builder, level int) {
	name := id.Nv.Name
	if level > 0 {
		name = strings.ReplaceAll(name, "/", "+")
	}
	sb.WriteString(name)
	sb.WriteByte('@')
	sb.WriteString(id.Nv.Version)
	for _, peer := range id.Peers {
		sb.WriteString(strings.Repeat("_", level+1))
		peer.writeSerialized(sb, level+1)
	}
}

// Equal reports whether two ids are identical, including peer order.
func (id *PackageID) Equal(other *PackageID) bool {
	if id == nil || other == nil {
		return id == other
	}
	if id.Nv != other.Nv || len(id.Peers) != len(other.Peers) {
		return false
	}
	for i, peer := range id.Peers {
		if !peer.Equal(other.Peers[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the id.
func (id *PackageID) Clone() *PackageID {
	out := &PackageID{Nv: id.Nv}
	if len(id.Peers) > 0 {
		out.Peers = make([]*PackageID, len(id.Peers))
		for i, peer := range id.Peers {
			out.Peers[i] = peer.Clone()
		}
	}
	return out
}

// ParsePackageID parses a serialized package id back into its structured
// form. It is the exact inverse of [PackageID.String].
func ParsePackageID(s string) (*PackageID, error) {
	id, pos, err := parsePackageIDAt(s, 0, 0)
	if err != nil {
		return nil, err
	}
	if pos != len(s) {
		return nil, errors.New(errors.ErrCodeInvalidPackageID, "trailing data at offset %d in package id %q", pos, s)
	}
	return id, nil
}

func parsePackageIDAt(s string, pos, level int) (*PackageID, int, error) {
	start := pos
	// A scope marker "@" is part of the name, not the version separator.
	if pos < len(s) && s[pos] == '@' {
		pos++
	}
	at := strings.IndexByte(s[pos:], '@')
	if at < 0 {
		return nil, 0, errors.New(errors.ErrCodeInvalidPackageID, "missing version in package id %q", s)
	}
	name := s[start : pos+at]
	pos += at + 1

	verEnd := pos
	for verEnd < len(s) && s[verEnd] != '_' {
		verEnd++
	}
	version := s[pos:verEnd]
	pos = verEnd
	if name == "" || version == "" {
		return nil, 0, errors.New(errors.ErrCodeInvalidPackageID, "invalid package id %q", s)
	}
	if level > 0 {
		name = strings.ReplaceAll(name, "+", "/")
	}

	id := &PackageID{Nv: PackageNv{Name: name, Version: version}}
	for pos < len(s) {
		run := 0
		for pos+run < len(s) && s[pos+run] == '_' {
			run++
		}
		if run <= level {
			// Separator for an enclosing level; let the caller consume it.
			break
		}
		if run != level+1 {
			return nil, 0, errors.New(errors.ErrCodeInvalidPackageID, "unexpected separator at offset %d in package id %q", pos, s)
		}
		peer, next, err := parsePackageIDAt(s, pos+run, level+1)
		if err != nil {
			return nil, 0, err
		}
		id.Peers = append(id.Peers, peer)
		pos = next
	}
	return id, pos, nil
}
