package snapshot

import (
	"bytes"
	"testing"

	"github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/npm"
)

func mustID(t *testing.T, s string) *npm.PackageID {
	t.Helper()
	id, err := npm.ParsePackageID(s)
	if err != nil {
		t.Fatalf("ParsePackageID(%q) error = %v", s, err)
	}
	return id
}

func sampleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s := New()
	rootID := mustID(t, "app@1.0.0_react@18.2.0")
	reactID := mustID(t, "react@18.2.0")
	s.RootPackages["app@1.0.0"] = rootID
	s.PackageReqs["app@^1"] = npm.PackageNv{Name: "app", Version: "1.0.0"}
	s.Packages[rootID.String()] = &ResolvedPackage{
		ID:           rootID,
		Dependencies: map[string]*npm.PackageID{"react": reactID},
	}
	s.Packages[reactID.String()] = &ResolvedPackage{ID: reactID, CopyIndex: 0}
	return s
}

func TestLockfileRoundTrip(t *testing.T) {
	s := sampleSnapshot(t)

	data, err := s.MarshalLockfile()
	if err != nil {
		t.Fatalf("MarshalLockfile() error = %v", err)
	}
	loaded, err := ParseLockfile(data)
	if err != nil {
		t.Fatalf("ParseLockfile() error = %v", err)
	}
	data2, err := loaded.MarshalLockfile()
	if err != nil {
		t.Fatalf("MarshalLockfile() second error = %v", err)
	}
	if !bytes.Equal(data, data2) {
		t.Errorf("round trip not byte-identical:\nfirst:\n%s\nsecond:\n%s", data, data2)
	}

	if _, ok := loaded.RootPackage(npm.PackageNv{Name: "app", Version: "1.0.0"}); !ok {
		t.Error("root package lost in round trip")
	}
	pkg, ok := loaded.Package(mustID(t, "app@1.0.0_react@18.2.0"))
	if !ok {
		t.Fatal("resolved package lost in round trip")
	}
	if pkg.Dependencies["react"].String() != "react@18.2.0" {
		t.Errorf("dependency edge = %v, want react@18.2.0", pkg.Dependencies["react"])
	}
}

func TestParseLockfileRejectsDanglingEdge(t *testing.T) {
	data := []byte(`{
		"version": 1,
		"packages": {
			"a@1.0.0": {"dependencies": {"b": "b@2.0.0"}}
		}
	}`)
	_, err := ParseLockfile(data)
	if !errors.Is(err, errors.ErrCodeInvalidLockfile) {
		t.Errorf("ParseLockfile() error = %v, want INVALID_LOCKFILE", err)
	}
}

func TestParseLockfileRejectsUnknownVersion(t *testing.T) {
	_, err := ParseLockfile([]byte(`{"version": 99}`))
	if !errors.Is(err, errors.ErrCodeInvalidLockfile) {
		t.Errorf("ParseLockfile() error = %v, want INVALID_LOCKFILE", err)
	}
}

func TestCopyIndexResolver(t *testing.T) {
	r := NewCopyIndexResolver()
	a1 := mustID(t, "pkg@1.0.0")
	a2 := mustID(t, "pkg@1.0.0_peer@2.0.0")
	other := mustID(t, "other@1.0.0")

	if got := r.Resolve(a1); got != 0 {
		t.Errorf("first id index = %d, want 0", got)
	}
	if got := r.Resolve(a2); got != 1 {
		t.Errorf("second id same nv index = %d, want 1", got)
	}
	if got := r.Resolve(a1); got != 0 {
		t.Errorf("repeat resolve = %d, want stable 0", got)
	}
	if got := r.Resolve(other); got != 0 {
		t.Errorf("distinct nv index = %d, want 0", got)
	}
}

func TestCopyIndexResolverSeed(t *testing.T) {
	r := NewCopyIndexResolver()
	seeded := mustID(t, "pkg@1.0.0_peer@2.0.0")
	r.Seed(seeded, 3)

	if got := r.Resolve(seeded); got != 3 {
		t.Errorf("seeded id index = %d, want 3", got)
	}
	// Fresh ids for the same nv continue past the seeded index.
	if got := r.Resolve(mustID(t, "pkg@1.0.0")); got != 4 {
		t.Errorf("fresh id index = %d, want 4", got)
	}
}
