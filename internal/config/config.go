// Package config implements the memo.toml-driven process configuration of
// SPEC_FULL.md §2.1: store directory, concurrency bound, digest algorithm,
// and debug-server address, loaded into an atomic.Pointer-guarded singleton.
// Grounded on allaspectsdev-tokenman's internal/config/config.go
// atomic.Pointer[Config] singleton and DefaultConfig idiom, simplified to
// this repo's single dependency on github.com/pelletier/go-toml/v2 (no
// viper: config values here are process-level only and never fingerprinted,
// so env-var overlay and mapstructure decode hooks are unneeded).
package config

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultStoreDir   = ".mem"
	DefaultDigest     = "sha256"
	DefaultServerAddr = ":9090"
	DefaultConfigFile = "memo.toml"
)

// Config is the top-level process configuration, loaded from memo.toml and
// overridden by CLI flags (§6's global flags). None of these values
// participate in any fingerprint.
type Config struct {
	Store       string `toml:"store"`
	Concurrency int    `toml:"concurrency"`
	Digest      string `toml:"digest"`
	ServerAddr  string `toml:"server_addr"`
}

// DefaultConfig returns the built-in defaults: store ".mem", concurrency
// 2xNumCPU (§4.6), digest "sha256", debug server on ":9090".
func DefaultConfig() *Config {
	return &Config{
		Store:       DefaultStoreDir,
		Concurrency: 2 * runtime.NumCPU(),
		Digest:      DefaultDigest,
		ServerAddr:  DefaultServerAddr,
	}
}

var current atomic.Pointer[Config]

// Get returns the active Config, defaulting if Load has never been called.
func Get() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	current.Store(d)
	return d
}

// Load reads path (if non-empty and present) over the defaults and stores
// the result as the active Config. A file that does not exist at path is not
// an error: the defaults are stored and returned, so callers may pass
// DefaultConfigFile unconditionally (§6: "--config <path> (default memo.toml
// if present)").
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				current.Store(cfg)
				return cfg, nil
			}
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Concurrency <= 0 {
		return fmt.Errorf("config: concurrency must be positive, got %d", cfg.Concurrency)
	}
	switch cfg.Digest {
	case "sha256", "blake2b":
	default:
		return fmt.Errorf("config: unknown digest %q (want sha256 or blake2b)", cfg.Digest)
	}
	if cfg.Store == "" {
		return fmt.Errorf("config: store directory must not be empty")
	}
	return nil
}
