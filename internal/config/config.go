// Package config loads and holds the scorefold service configuration.
// Values come from three layers: compiled-in defaults, the embedded YAML
// file, and environment variable overrides, applied in that order.
package config

// EmbeddedConfig holds the raw bytes of the configuration file, typically
// embedded into the binary and passed in from main.
type EmbeddedConfig []byte

// PoolConfig holds database connection pool settings. MaxOpenConns must be
// at least the configured lane count, or parallel runs can self-deadlock
// waiting for connections they hold transitively.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds one named database connection's settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"` // "postgres", "mysql" or "sqlite"
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	Database string     `yaml:"database"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Sslmode  string     `yaml:"sslmode"`
	Pool     PoolConfig `yaml:"pool"`
}

// PipelineConfig holds the tunables of the aggregation pipeline.
type PipelineConfig struct {
	// ChunkSize is the number of events read, translated, written and
	// committed as one transactional unit.
	ChunkSize int `yaml:"chunk_size"`
	// PartitionCount is the number of user-id partitions (and lanes) used
	// by parallel runs.
	PartitionCount int `yaml:"partition_count"`
	// PageSize is the reader's fetch size. Defaults to ChunkSize.
	PageSize int `yaml:"page_size"`
	// WriteRetry bounds retries of transient chunk write failures.
	WriteRetry RetryConfig `yaml:"write_retry"`
}

// RetryConfig bounds retries of transient failures with linear backoff.
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	InitialIntervalMS int `yaml:"initial_interval_ms"`
}

// ServerConfig holds the HTTP trigger endpoint settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ScorefoldConfig holds everything under the "scorefold" top-level key.
type ScorefoldConfig struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	// LedgerDBRef names the connection used for the run/lane ledger.
	LedgerDBRef string `yaml:"ledger_db_ref"`
	// StoreDBRef names the connection used for events and scores.
	StoreDBRef string `yaml:"store_db_ref"`
	// Databases holds raw per-connection settings, decoded per entry with
	// mapstructure so unknown connection names need no schema change here.
	Databases map[string]interface{} `yaml:"database"`
}

// Config is the root configuration structure.
type Config struct {
	Scorefold ScorefoldConfig `yaml:"scorefold"`
}

// NewConfig returns a Config populated with defaults. The chunk size and
// partition count defaults match the source dataset this service was built
// around; production deployments override them in YAML.
func NewConfig() *Config {
	return &Config{
		Scorefold: ScorefoldConfig{
			Pipeline: PipelineConfig{
				ChunkSize:      5,
				PartitionCount: 3,
				WriteRetry: RetryConfig{
					MaxAttempts:       3,
					InitialIntervalMS: 200,
				},
			},
			Server:      ServerConfig{Addr: ":8080"},
			Logging:     LoggingConfig{Level: "INFO"},
			LedgerDBRef: "primary",
			StoreDBRef:  "primary",
			Databases:   map[string]interface{}{},
		},
	}
}

// EffectivePageSize returns the reader page size, defaulting to the chunk
// size when unset.
func (c *PipelineConfig) EffectivePageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return c.ChunkSize
}
