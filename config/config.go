// Package config loads condamirror's EnvironmentConfig from a YAML
// file, grounded on bartekus-stagecraft/pkg/config's Load/Exists
// pattern: default values are applied as a merge over the unmarshalled
// struct rather than scattered zero-value checks at each call site.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when the config file does not exist at the
// given path.
var ErrNotFound = errors.New("condamirror: config file not found")

// EnvironmentConfig is the explicit configuration struct threaded
// through construction of a channel.Reader and a resolve.Resolver,
// rather than module-level state or a singleton.
type EnvironmentConfig struct {
	// Subdirs lists the platform subdirs a channel operation spans when
	// the caller doesn't pass an explicit list. Defaults to noarch plus
	// the three most common platform subdirs.
	Subdirs []string `yaml:"subdirs,omitempty"`

	// QueryCacheSize is loaded and defaulted here but is not passed to
	// the channel readers: channel.Local and channel.HTTP each use a
	// fixed 256-entry query cache.
	QueryCacheSize int `yaml:"query_cache_size,omitempty"`

	// HTTPTimeout bounds a single repodata/instructions fetch over
	// channel.HTTP.
	HTTPTimeout time.Duration `yaml:"http_timeout,omitempty"`

	// FetchParallelism is loaded and defaulted here but is not read by
	// channel.HTTP, which fetches every requested subdir concurrently
	// with no bound.
	FetchParallelism int `yaml:"fetch_parallelism,omitempty"`

	// BaseURL is the upstream or local channel root this configuration
	// targets.
	BaseURL string `yaml:"base_url,omitempty"`

	// Verbose selects Debug-level logging via logging.NewStandard.
	Verbose bool `yaml:"verbose,omitempty"`
}

func defaults() EnvironmentConfig {
	return EnvironmentConfig{
		Subdirs:          []string{"noarch", "linux-64", "osx-64", "win-64"},
		QueryCacheSize:   256,
		HTTPTimeout:      30 * time.Second,
		FetchParallelism: 4,
	}
}

// applyDefaults merges zero-valued fields of cfg with the package
// defaults, the way stagecraft's config.Load merges file values over
// defaults rather than requiring every field present in the file.
func applyDefaults(cfg EnvironmentConfig) EnvironmentConfig {
	d := defaults()
	if len(cfg.Subdirs) == 0 {
		cfg.Subdirs = d.Subdirs
	}
	if cfg.QueryCacheSize == 0 {
		cfg.QueryCacheSize = d.QueryCacheSize
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = d.HTTPTimeout
	}
	if cfg.FetchParallelism == 0 {
		cfg.FetchParallelism = d.FetchParallelism
	}
	return cfg
}

// Exists reports whether a config file exists at path. It returns
// (false, nil) if the file is simply absent.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Load reads and validates an EnvironmentConfig from path, applying
// field-level defaults to anything the file leaves unset. It returns
// ErrNotFound if path does not exist.
func Load(path string) (EnvironmentConfig, error) {
	exists, err := Exists(path)
	if err != nil {
		return EnvironmentConfig{}, fmt.Errorf("config: check existence: %w", err)
	}
	if !exists {
		return EnvironmentConfig{}, ErrNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return EnvironmentConfig{}, fmt.Errorf("config: read file: %w", err)
	}

	var cfg EnvironmentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EnvironmentConfig{}, fmt.Errorf("config: parse file: %w", err)
	}
	if cfg.BaseURL == "" {
		return EnvironmentConfig{}, errors.New("config: base_url must be non-empty")
	}

	return applyDefaults(cfg), nil
}

// Default returns an EnvironmentConfig with every field set to its
// package default, for callers that construct one programmatically
// instead of loading a file (tests, or a CLI invocation that only
// passes --base-url).
func Default(baseURL string) EnvironmentConfig {
	cfg := applyDefaults(EnvironmentConfig{})
	cfg.BaseURL = baseURL
	return cfg
}
