package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/depstack/depstack/pkg/errors"
)

func TestClientPackageInfo(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/react" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "react",
			"dist-tags": {"latest": "18.2.0"},
			"versions": {
				"18.2.0": {"version": "18.2.0", "dependencies": {"loose-envify": "^1.1.0"}},
				"17.0.2": {}
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	ctx := context.Background()

	info, err := client.PackageInfo(ctx, "react")
	if err != nil {
		t.Fatalf("PackageInfo() error = %v", err)
	}
	if info.Name != "react" {
		t.Errorf("Name = %q, want %q", info.Name, "react")
	}
	if info.DistTags["latest"] != "18.2.0" {
		t.Errorf("DistTags[latest] = %q, want 18.2.0", info.DistTags["latest"])
	}
	// The version field is backfilled from the map key when missing.
	if v := info.Versions["17.0.2"]; v == nil || v.Version != "17.0.2" {
		t.Errorf("Versions[17.0.2] = %+v, want backfilled version", v)
	}

	// Second lookup is served from memory.
	if _, err := client.PackageInfo(ctx, "react"); err != nil {
		t.Fatalf("PackageInfo() second call error = %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("registry hits = %d, want 1", got)
	}
}

func TestClientPackageNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.PackageInfo(context.Background(), "does-not-exist")
	if !errors.Is(err, errors.ErrCodePackageNotFound) {
		t.Errorf("PackageInfo() error = %v, want PACKAGE_NOT_FOUND", err)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false, want true")
	}
}

func TestClientInvalidName(t *testing.T) {
	client := NewClient()
	_, err := client.PackageInfo(context.Background(), "../evil")
	if !errors.Is(err, errors.ErrCodeInvalidPackage) {
		t.Errorf("PackageInfo() error = %v, want INVALID_PACKAGE", err)
	}
}

func TestClientMarkForceReload(t *testing.T) {
	client := NewClient()
	if !client.MarkForceReload() {
		t.Error("first MarkForceReload() = false, want true")
	}
	if client.MarkForceReload() {
		t.Error("second MarkForceReload() = true, want false")
	}
}

func TestStaticRegistry(t *testing.T) {
	reg := NewStaticRegistry()
	reg.AddPackage("package-a", "1.0.0")
	reg.AddDependency("package-a", "1.0.0", "package-b", "^2")
	reg.AddDistTag("package-a", "latest", "1.0.0")

	info, err := reg.PackageInfo(context.Background(), "package-a")
	if err != nil {
		t.Fatalf("PackageInfo() error = %v", err)
	}
	if info.Versions["1.0.0"].Dependencies["package-b"] != "^2" {
		t.Errorf("dependency not recorded: %+v", info.Versions["1.0.0"])
	}
	if info.DistTags["latest"] != "1.0.0" {
		t.Errorf("dist-tag not recorded: %+v", info.DistTags)
	}

	if _, err := reg.PackageInfo(context.Background(), "missing"); !IsNotFound(err) {
		t.Errorf("PackageInfo(missing) error = %v, want not found", err)
	}
}
