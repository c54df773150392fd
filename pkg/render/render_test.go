package render

import (
	"strings"
	"testing"

	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/snapshot"
)

func testSnapshot(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	mustID := func(s string) *npm.PackageID {
		id, err := npm.ParsePackageID(s)
		if err != nil {
			t.Fatalf("ParsePackageID(%q) error = %v", s, err)
		}
		return id
	}

	snap := snapshot.New()
	root := mustID("app@1.0.0")
	dep := mustID("left-pad@1.3.0")
	optional := mustID("fsevents@2.3.2")
	snap.RootPackages[root.Nv.String()] = root
	snap.PackageReqs["app@^1"] = root.Nv
	snap.Packages[root.String()] = &snapshot.ResolvedPackage{
		ID: root,
		Dependencies: map[string]*npm.PackageID{
			"left-pad": dep,
			"fsevents": optional,
		},
		OptionalDependencies: map[string]struct{}{"fsevents": {}},
	}
	snap.Packages[dep.String()] = &snapshot.ResolvedPackage{ID: dep}
	deprecated := "use something else"
	snap.Packages[optional.String()] = &snapshot.ResolvedPackage{ID: optional, Deprecated: &deprecated}
	return snap
}

func TestToDOT(t *testing.T) {
	snap := testSnapshot(t)
	dot := ToDOT(snap, Options{})

	for _, want := range []string{
		`"app@1.0.0" [label="app@1.0.0", penwidth=2];`,
		`"app@1.0.0" -> "left-pad@1.3.0";`,
		`"app@1.0.0" -> "fsevents@2.3.2" [style=dashed];`,
		`fillcolor=lightgrey`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
}

func TestToDOTDeterministic(t *testing.T) {
	snap := testSnapshot(t)
	if a, b := ToDOT(snap, Options{Detailed: true}), ToDOT(snap, Options{Detailed: true}); a != b {
		t.Error("repeated renders differ")
	}
}

func TestToDOTDetailedLabels(t *testing.T) {
	snap := testSnapshot(t)
	snap.Packages["fsevents@2.3.2"].CopyIndex = 1
	dot := ToDOT(snap, Options{Detailed: true})
	if !strings.Contains(dot, "copy: 1") {
		t.Errorf("detailed DOT missing copy index:\n%s", dot)
	}
	if !strings.Contains(dot, "deprecated") {
		t.Errorf("detailed DOT missing deprecation notice:\n%s", dot)
	}
}
