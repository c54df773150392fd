package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Serve.Addr != ":8080" {
		t.Errorf("default addr = %q", cfg.Serve.Addr)
	}
	if time.Duration(cfg.CacheTTL) != 24*time.Hour {
		t.Errorf("default cache_ttl = %v", time.Duration(cfg.CacheTTL))
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
registry_url = "https://registry.example.com"
cache_ttl = "1h"
dedup = true

[serve]
addr = ":9090"
redis_addr = "localhost:6379"
mongo_uri = "mongodb://localhost:27017"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.RegistryURL != "https://registry.example.com" {
		t.Errorf("registry_url = %q", cfg.RegistryURL)
	}
	if time.Duration(cfg.CacheTTL) != time.Hour {
		t.Errorf("cache_ttl = %v", time.Duration(cfg.CacheTTL))
	}
	if !cfg.Dedup {
		t.Error("dedup should be true")
	}
	if cfg.Serve.Addr != ":9090" {
		t.Errorf("serve.addr = %q", cfg.Serve.Addr)
	}
	if cfg.Serve.MongoDatabase != "depstack" {
		t.Errorf("serve.mongo_database default = %q", cfg.Serve.MongoDatabase)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("registry_url = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() should report malformed TOML")
	}
}
