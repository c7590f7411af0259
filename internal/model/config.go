package model

// Config is the parsed monoflow.yaml. The file doubles as the workspace
// marker: discovery fails when it is absent.
type Config struct {
	Version     int                       `yaml:"version"`
	Project     ProjectConfig             `yaml:"project"`
	Packages    []string                  `yaml:"packages"`
	Concurrency int                       `yaml:"concurrency"`
	Cache       CacheConfig               `yaml:"cache"`
	Retry       RetryConfig               `yaml:"retry"`
	Watch       WatchConfig               `yaml:"watch"`
	Logging     LoggingConfig             `yaml:"logging"`
	Pipeline    map[string]TaskDefinition `yaml:"pipeline"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type CacheConfig struct {
	// Dir is the cache root relative to the workspace root.
	Dir string `yaml:"dir"`
	// Disabled turns all lookups into misses and suppresses writes.
	Disabled bool `yaml:"disabled"`
}

type RetryConfig struct {
	Enabled            bool  `yaml:"enabled"`
	RetryableExitCodes []int `yaml:"retryable_exit_codes"`
	MaxRetries         int   `yaml:"max_retries"`
	InitialBackoffMs   int   `yaml:"initial_backoff_ms"`
	MaxBackoffMs       int   `yaml:"max_backoff_ms"`
}

type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}
