package version

import (
	"testing"

	"github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/registry"
)

func infoWithVersions(name string, versions ...string) *registry.PackageInfo {
	info := &registry.PackageInfo{
		Name:     name,
		DistTags: make(map[string]string),
		Versions: make(map[string]*registry.VersionInfo),
	}
	for _, v := range versions {
		info.Versions[v] = &registry.VersionInfo{Version: v}
	}
	return info
}

func TestResolveBestVersionInfoHighest(t *testing.T) {
	r := &Resolver{}
	info := infoWithVersions("lodash", "4.17.19", "4.17.21", "3.10.1")

	got, err := r.ResolveBestVersionInfo(npm.MustParseVersionReq("^4"), info, nil)
	if err != nil {
		t.Fatalf("ResolveBestVersionInfo() error = %v", err)
	}
	if got.Version != "4.17.21" {
		t.Errorf("Version = %q, want 4.17.21", got.Version)
	}
}

func TestResolveBestVersionInfoPrefersExisting(t *testing.T) {
	r := &Resolver{}
	info := infoWithVersions("lodash", "4.17.19", "4.17.21")

	// 4.17.19 already lives in the graph, so ^4 should reuse it even
	// though 4.17.21 is higher.
	got, err := r.ResolveBestVersionInfo(npm.MustParseVersionReq("^4"), info, []string{"4.17.19"})
	if err != nil {
		t.Fatalf("ResolveBestVersionInfo() error = %v", err)
	}
	if got.Version != "4.17.19" {
		t.Errorf("Version = %q, want existing 4.17.19", got.Version)
	}

	// An existing version outside the range does not win.
	got, err = r.ResolveBestVersionInfo(npm.MustParseVersionReq("^4.17.20"), info, []string{"4.17.19"})
	if err != nil {
		t.Fatalf("ResolveBestVersionInfo() error = %v", err)
	}
	if got.Version != "4.17.21" {
		t.Errorf("Version = %q, want 4.17.21", got.Version)
	}
}

func TestResolveBestVersionInfoDistTag(t *testing.T) {
	r := &Resolver{}
	info := infoWithVersions("react", "18.2.0", "19.0.0-rc.1")
	info.DistTags["latest"] = "18.2.0"
	info.DistTags["next"] = "19.0.0-rc.1"
	info.DistTags["dangling"] = "99.0.0"

	got, err := r.ResolveBestVersionInfo(npm.MustParseVersionReq("next"), info, nil)
	if err != nil {
		t.Fatalf("ResolveBestVersionInfo(next) error = %v", err)
	}
	if got.Version != "19.0.0-rc.1" {
		t.Errorf("Version = %q, want 19.0.0-rc.1", got.Version)
	}

	if _, err := r.ResolveBestVersionInfo(npm.MustParseVersionReq("nope"), info, nil); !errors.Is(err, errors.ErrCodeTagNotFound) {
		t.Errorf("missing tag error = %v, want TAG_NOT_FOUND", err)
	}
	if _, err := r.ResolveBestVersionInfo(npm.MustParseVersionReq("dangling"), info, nil); !errors.Is(err, errors.ErrCodeVersionNotFound) {
		t.Errorf("dangling tag error = %v, want VERSION_NOT_FOUND", err)
	}
}

func TestResolveBestVersionInfoNoMatch(t *testing.T) {
	r := &Resolver{}
	info := infoWithVersions("lodash", "3.10.1")

	_, err := r.ResolveBestVersionInfo(npm.MustParseVersionReq("^4"), info, nil)
	if !errors.Is(err, errors.ErrCodeVersionNotFound) {
		t.Errorf("error = %v, want VERSION_NOT_FOUND", err)
	}
}

func TestResolveBestVersionInfoLinkPackages(t *testing.T) {
	r := &Resolver{
		LinkPackages: map[string][]*registry.VersionInfo{
			"my-lib": {{Version: "0.0.1"}},
		},
	}
	// Registry knows nothing about my-lib beyond an empty document.
	info := infoWithVersions("my-lib")

	got, err := r.ResolveBestVersionInfo(npm.MustParseVersionReq("*"), info, nil)
	if err != nil {
		t.Fatalf("ResolveBestVersionInfo() error = %v", err)
	}
	if got.Version != "0.0.1" {
		t.Errorf("Version = %q, want linked 0.0.1", got.Version)
	}
}

func TestVersionReqSatisfies(t *testing.T) {
	r := &Resolver{}
	info := infoWithVersions("react", "18.2.0", "17.0.2")
	info.DistTags["latest"] = "18.2.0"

	tests := []struct {
		req     string
		version string
		want    bool
	}{
		{"^18", "18.2.0", true},
		{"^18", "17.0.2", false},
		{"latest", "18.2.0", true},
		{"latest", "17.0.2", false},
		{"*", "17.0.2", true},
	}
	for _, tt := range tests {
		got, err := r.VersionReqSatisfies(npm.MustParseVersionReq(tt.req), tt.version, info)
		if err != nil {
			t.Fatalf("VersionReqSatisfies(%q, %q) error = %v", tt.req, tt.version, err)
		}
		if got != tt.want {
			t.Errorf("VersionReqSatisfies(%q, %q) = %v, want %v", tt.req, tt.version, got, tt.want)
		}
	}
}
