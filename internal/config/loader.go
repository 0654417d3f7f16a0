package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPaths defines the config file search paths in priority order
var ConfigPaths = []string{
	"./.notedex.yaml",               // Project-specific config (highest priority)
	"~/.config/notedex/config.yaml", // User config
	"/etc/notedex/config.yaml",      // System config (lowest priority)
}

// Loader handles configuration loading with priority merging
type Loader struct {
	configPaths []string
}

// NewLoader creates a new config loader
func NewLoader() *Loader {
	return &Loader{
		configPaths: ConfigPaths,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Command line flags (handled by caller)
// 2. Environment variables
// 3. ./.notedex.yaml
// 4. ~/.config/notedex/config.yaml
// 5. /etc/notedex/config.yaml
// 6. Built-in defaults
func (l *Loader) LoadConfig(customPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// If custom path is provided, use only that path
	if customPath != "" {
		// Validate the custom path for security
		if err := validateConfigPath(customPath); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		if err := l.loadFromFile(config, customPath); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", customPath, err)
		}
	} else {
		// Load from standard paths in reverse priority order (lowest to highest)
		paths := make([]string, len(l.configPaths))
		copy(paths, l.configPaths)
		// Reverse the slice to load lowest priority first
		for i := len(paths)/2 - 1; i >= 0; i-- {
			opp := len(paths) - 1 - i
			paths[i], paths[opp] = paths[opp], paths[i]
		}

		for _, path := range paths {
			expandedPath := expandPath(path)
			if fileExists(expandedPath) {
				if err := l.loadFromFile(config, expandedPath); err != nil {
					// Log warning but continue with other config files
					fmt.Fprintf(os.Stderr, "Warning: Failed to load config from %s: %v\n", expandedPath, err)
				}
			}
		}
	}

	// Apply environment variable overrides
	if err := l.applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file and merges it with existing config
func (l *Loader) loadFromFile(config *Config, path string) error {
	// #nosec G304 - path is validated by validateConfigPath() before reaching here
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	// Create a temporary config to unmarshal into
	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Merge the file config into the existing config
	mergeConfigs(config, &fileConfig)

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func (l *Loader) applyEnvOverrides(config *Config) error {
	envMappings := map[string]func(string) error{
		// Vault Config
		"NOTEDEX_VAULT_ROOT": func(v string) error { config.Vault.Root = v; return nil },

		// Index Config
		"NOTEDEX_INDEX_WORKERS":        func(v string) error { return parseInt(v, &config.Index.Workers) },
		"NOTEDEX_INDEX_WATCH_DEBOUNCE": func(v string) error { return parseDuration(v, &config.Index.WatchDebounce) },
		"NOTEDEX_INDEX_SETTLE_TIMEOUT": func(v string) error { return parseDuration(v, &config.Index.SettleTimeout) },

		// Cache Config
		"NOTEDEX_CACHE_EXPIRY":        func(v string) error { return parseDuration(v, &config.Cache.Expiry) },
		"NOTEDEX_CACHE_CAPACITY":      func(v string) error { return parseInt(v, &config.Cache.Capacity) },
		"NOTEDEX_CACHE_FETCH_RATE":    func(v string) error { return parseFloat(v, &config.Cache.FetchRate) },
		"NOTEDEX_CACHE_FETCH_BURST":   func(v string) error { return parseInt(v, &config.Cache.FetchBurst) },
		"NOTEDEX_CACHE_FETCH_TIMEOUT": func(v string) error { return parseDuration(v, &config.Cache.FetchTimeout) },

		// Output Config
		"NOTEDEX_OUTPUT_DEFAULT_FORMAT": func(v string) error { config.Output.DefaultFormat = v; return nil },
		"NOTEDEX_OUTPUT_COLOR_MODE":     func(v string) error { config.Output.ColorMode = v; return nil },
		"NOTEDEX_OUTPUT_VERBOSE":        func(v string) error { return parseBool(v, &config.Output.Verbose) },
		"NOTEDEX_OUTPUT_LOG_FORMAT":     func(v string) error { config.Output.LogFormat = v; return nil },

		// Metrics Config
		"NOTEDEX_METRICS_ENABLED": func(v string) error { return parseBool(v, &config.Metrics.Enabled) },
		"NOTEDEX_METRICS_ADDRESS": func(v string) error { config.Metrics.Address = v; return nil },
	}

	for envVar, setter := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			if err := setter(value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", envVar, err)
			}
		}
	}

	// Comma-separated lists
	if include := os.Getenv("NOTEDEX_VAULT_INCLUDE"); include != "" {
		config.Vault.Include = splitList(include)
	}
	if exclude := os.Getenv("NOTEDEX_VAULT_EXCLUDE"); exclude != "" {
		config.Vault.Exclude = splitList(exclude)
	}

	return nil
}

// GetConfigPaths returns the list of configuration file paths that will be searched
func GetConfigPaths() []string {
	paths := make([]string, 0, len(ConfigPaths))
	for _, path := range ConfigPaths {
		paths = append(paths, expandPath(path))
	}
	return paths
}

// FindConfigFile finds the first existing config file in the search paths
func FindConfigFile() (string, bool) {
	for _, path := range ConfigPaths {
		expandedPath := expandPath(path)
		if fileExists(expandedPath) {
			return expandedPath, true
		}
	}
	return "", false
}

// Helper functions

// validateConfigPath validates that a config path is safe to read
func validateConfigPath(path string) error {
	// Clean the path to resolve any ".." components
	cleanPath := filepath.Clean(path)

	// Check for path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path traversal not allowed")
	}

	// Ensure it's a YAML file
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("config file must have .yaml or .yml extension")
	}

	// Convert to absolute path for additional validation
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// Basic sanity check - ensure it's not in sensitive system directories
	if strings.HasPrefix(absPath, "/etc/passwd") ||
		strings.HasPrefix(absPath, "/etc/shadow") ||
		strings.HasPrefix(absPath, "/proc/") ||
		strings.HasPrefix(absPath, "/sys/") {
		return fmt.Errorf("access to system files not allowed")
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// mergeConfigs merges source config into destination config
// Only non-zero values from source overwrite destination
func mergeConfigs(dst, src *Config) {
	// Version
	if src.Version != "" {
		dst.Version = src.Version
	}

	mergeVaultConfig(&dst.Vault, &src.Vault)
	mergeIndexConfig(&dst.Index, &src.Index)
	mergeCacheConfig(&dst.Cache, &src.Cache)
	mergeOutputConfig(&dst.Output, &src.Output)
	mergeMetricsConfig(&dst.Metrics, &src.Metrics)
}

// mergeVaultConfig merges vault configuration
func mergeVaultConfig(dst, src *VaultConfig) {
	if src.Root != "" {
		dst.Root = src.Root
	}
	if len(src.Include) > 0 {
		dst.Include = src.Include
	}
	if len(src.Exclude) > 0 {
		dst.Exclude = src.Exclude
	}
}

// mergeIndexConfig merges pipeline configuration
func mergeIndexConfig(dst, src *IndexConfig) {
	if src.Workers != 0 {
		dst.Workers = src.Workers
	}
	if src.WatchDebounce != 0 {
		dst.WatchDebounce = src.WatchDebounce
	}
	if src.SettleTimeout != 0 {
		dst.SettleTimeout = src.SettleTimeout
	}
}

// mergeCacheConfig merges cache configuration
func mergeCacheConfig(dst, src *CacheConfig) {
	if src.Expiry != 0 {
		dst.Expiry = src.Expiry
	}
	if src.Capacity != 0 {
		dst.Capacity = src.Capacity
	}
	if src.FetchRate != 0 {
		dst.FetchRate = src.FetchRate
	}
	if src.FetchBurst != 0 {
		dst.FetchBurst = src.FetchBurst
	}
	if src.FetchTimeout != 0 {
		dst.FetchTimeout = src.FetchTimeout
	}
}

// mergeOutputConfig merges output configuration
func mergeOutputConfig(dst, src *OutputConfig) {
	if src.DefaultFormat != "" {
		dst.DefaultFormat = src.DefaultFormat
	}
	if src.ColorMode != "" {
		dst.ColorMode = src.ColorMode
	}
	if src.LogFormat != "" {
		dst.LogFormat = src.LogFormat
	}
	// For boolean fields, we need to check if they were explicitly set
	// This is a limitation of YAML unmarshaling, but we'll handle it in env overrides
	mergeIfSet(&dst.Verbose, src.Verbose)
}

// mergeMetricsConfig merges metrics configuration
func mergeMetricsConfig(dst, src *MetricsConfig) {
	if src.Address != "" {
		dst.Address = src.Address
	}
	mergeIfSet(&dst.Enabled, src.Enabled)
}

// mergeIfSet only merges boolean values if they appear to be explicitly set
// This is a simple heuristic, but works for most cases
func mergeIfSet(dst *bool, src bool) {
	// For now, always merge - this could be improved with custom unmarshaling
	*dst = src
}

// Type conversion helpers

func parseInt(s string, dst *int) error {
	val, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func parseBool(s string, dst *bool) error {
	val, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func parseFloat(s string, dst *float64) error {
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(s string, dst *time.Duration) error {
	val, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}
