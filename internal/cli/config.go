package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the depstack configuration, loaded from a TOML file at
// ~/.config/depstack/config.toml (or $XDG_CONFIG_HOME/depstack/config.toml).
//
// Example:
//
//	registry_url = "https://registry.npmjs.org"
//	cache_ttl = "24h"
//	dedup = true
//
//	[serve]
//	addr = ":8080"
//	redis_addr = "localhost:6379"
//	mongo_uri = "mongodb://localhost:27017"
//	mongo_database = "depstack"
type Config struct {
	RegistryURL string      `toml:"registry_url"`
	CacheTTL    duration    `toml:"cache_ttl"`
	Dedup       bool        `toml:"dedup"`
	Serve       ServeConfig `toml:"serve"`
}

// ServeConfig configures the HTTP server. Empty redis and mongo settings
// fall back to in-process backends.
type ServeConfig struct {
	Addr          string `toml:"addr"`
	RedisAddr     string `toml:"redis_addr"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// duration wraps time.Duration so TOML values can be written as "24h".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		CacheTTL: duration(24 * time.Hour),
		Serve: ServeConfig{
			Addr:          ":8080",
			MongoDatabase: appName,
		},
	}
}

// LoadConfig reads the configuration file at path, falling back to the
// default path when empty. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return DefaultConfig(), err
	}
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = ":8080"
	}
	if cfg.Serve.MongoDatabase == "" {
		cfg.Serve.MongoDatabase = appName
	}
	return cfg, nil
}

// defaultConfigPath returns the config path using XDG standard
// (~/.config/depstack/config.toml).
func defaultConfigPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}
