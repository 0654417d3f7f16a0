package config

import (
	"fmt"
	"time"
)

// Config holds the complete application configuration
type Config struct {
	Version string        `yaml:"version" json:"version"`
	Vault   VaultConfig   `yaml:"vault" json:"vault"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Cache   CacheConfig   `yaml:"cache" json:"cache"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// VaultConfig selects the document tree to index
type VaultConfig struct {
	Root    string   `yaml:"root" json:"root"`       // directory holding the notes
	Include []string `yaml:"include" json:"include"` // file name glob patterns
	Exclude []string `yaml:"exclude" json:"exclude"` // directory names to skip
}

// IndexConfig configures the import pipeline and the watcher
type IndexConfig struct {
	Workers       int           `yaml:"workers" json:"workers"`               // parse workers
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"` // quiet period before a modify event
	SettleTimeout time.Duration `yaml:"settle_timeout" json:"settle_timeout"` // wait for the initial parse
}

// CacheConfig configures the CSV cache and remote fetches
type CacheConfig struct {
	Expiry       time.Duration `yaml:"expiry" json:"expiry"`
	Capacity     int           `yaml:"capacity" json:"capacity"`
	FetchRate    float64       `yaml:"fetch_rate" json:"fetch_rate"` // remote fetches per second
	FetchBurst   int           `yaml:"fetch_burst" json:"fetch_burst"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// OutputConfig configures output formatting and display
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format" json:"default_format"` // json|text|markdown|csv
	ColorMode     string `yaml:"color_mode" json:"color_mode"`         // auto|always|never
	Verbose       bool   `yaml:"verbose" json:"verbose"`               // default verbosity
	LogFormat     string `yaml:"log_format" json:"log_format"`         // text|json
}

// MetricsConfig configures the Prometheus endpoint of the watch command
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Vault: VaultConfig{
			Root:    ".",
			Include: []string{"*.md", "*.markdown", "*.csv"},
			Exclude: []string{".git", "node_modules", ".obsidian"},
		},
		Index: IndexConfig{
			Workers:       2,
			WatchDebounce: 250 * time.Millisecond,
			SettleTimeout: 60 * time.Second,
		},
		Cache: CacheConfig{
			Expiry:       300 * time.Second,
			Capacity:     256,
			FetchRate:    2,
			FetchBurst:   4,
			FetchTimeout: 15 * time.Second,
		},
		Output: OutputConfig{
			DefaultFormat: "text",
			ColorMode:     "auto",
			Verbose:       false,
			LogFormat:     "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateIndexConfig(); err != nil {
		return err
	}
	if err := c.validateCacheConfig(); err != nil {
		return err
	}
	if err := c.validateOutputConfig(); err != nil {
		return err
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}
	return nil
}

// validateIndexConfig validates pipeline-related configuration
func (c *Config) validateIndexConfig() error {
	if c.Index.Workers < 1 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if c.Index.WatchDebounce < 0 {
		return fmt.Errorf("watch_debounce must be non-negative")
	}
	if c.Index.SettleTimeout < 0 {
		return fmt.Errorf("settle_timeout must be non-negative")
	}
	return nil
}

// validateCacheConfig validates cache-related configuration
func (c *Config) validateCacheConfig() error {
	if c.Cache.Expiry <= 0 {
		return fmt.Errorf("cache expiry must be greater than 0")
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be greater than 0")
	}
	if c.Cache.FetchRate < 0 {
		return fmt.Errorf("fetch_rate must be non-negative")
	}
	if c.Cache.FetchBurst < 1 {
		return fmt.Errorf("fetch_burst must be greater than 0")
	}
	if c.Cache.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must be non-negative")
	}
	return nil
}

// validateOutputConfig validates output-related configuration
func (c *Config) validateOutputConfig() error {
	if c.Output.DefaultFormat != "" {
		validFormats := map[string]bool{
			"json":     true,
			"text":     true,
			"markdown": true,
			"csv":      true,
		}
		if !validFormats[c.Output.DefaultFormat] {
			return fmt.Errorf("invalid output format: %s (must be one of: json, text, markdown, csv)", c.Output.DefaultFormat)
		}
	}
	if c.Output.ColorMode != "" {
		validColorModes := map[string]bool{
			"auto":   true,
			"always": true,
			"never":  true,
		}
		if !validColorModes[c.Output.ColorMode] {
			return fmt.Errorf("invalid color mode: %s (must be one of: auto, always, never)", c.Output.ColorMode)
		}
	}
	if c.Output.LogFormat != "" && c.Output.LogFormat != "text" && c.Output.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be one of: text, json)", c.Output.LogFormat)
	}
	return nil
}
