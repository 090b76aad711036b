// Package config provides configuration file support for volsnap.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the volsnap server configuration.
type Config struct {
	// ListenAddr is the address of the HTTP admin surface.
	ListenAddr string `yaml:"listen_addr"`
	// MdsAddr is the base URL of the upstream volume metadata service.
	MdsAddr string `yaml:"mds_addr"`
	// MdsRequestTimeoutMs bounds one upstream request.
	MdsRequestTimeoutMs int `yaml:"mds_request_timeout_ms"`
	// MetaStorePath is the bbolt database holding snapshot records.
	MetaStorePath string `yaml:"meta_store_path"`
	// DataStorePath is the root directory of the chunk object store.
	DataStorePath string `yaml:"data_store_path"`
	// MaxSnapshotLimit bounds the live snapshots per volume.
	MaxSnapshotLimit int `yaml:"max_snapshot_limit"`
	// SnapshotCoreThreadNum bounds outstanding chunk uploads per task.
	SnapshotCoreThreadNum int `yaml:"snapshot_core_thread_num"`
	// WorkerPoolSize is the number of workers running snapshot pipelines.
	WorkerPoolSize int `yaml:"worker_pool_size"`
	// ChunkSplitSize is the upload granularity; must divide the chunk size.
	ChunkSplitSize uint64 `yaml:"chunk_split_size"`
	// CheckSnapshotStatusIntervalMs is the poll period while waiting for the
	// upstream snapshot to finish deleting.
	CheckSnapshotStatusIntervalMs int `yaml:"check_snapshot_status_interval_ms"`
	// MdsSessionTimeUs is the upstream session time; after creating an
	// upstream snapshot the engine waits twice this long so the new sequence
	// reaches every volume client.
	MdsSessionTimeUs int `yaml:"mds_session_time_us"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // the logger writes JSON whatever this says
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ListenAddr:                    ":5566",
		MdsAddr:                       "http://127.0.0.1:6666",
		MdsRequestTimeoutMs:           10_000,
		MetaStorePath:                 "volsnap-meta.db",
		DataStorePath:                 "volsnap-data",
		MaxSnapshotLimit:              64,
		SnapshotCoreThreadNum:         8,
		WorkerPoolSize:                8,
		ChunkSplitSize:                1 << 20,
		CheckSnapshotStatusIntervalMs: 1000,
		MdsSessionTimeUs:              5_000_000,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from the given path. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	if c.MaxSnapshotLimit < 1 {
		return fmt.Errorf("max_snapshot_limit must be >= 1, got %d", c.MaxSnapshotLimit)
	}
	if c.SnapshotCoreThreadNum < 1 {
		return fmt.Errorf("snapshot_core_thread_num must be >= 1, got %d", c.SnapshotCoreThreadNum)
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1, got %d", c.WorkerPoolSize)
	}
	if c.ChunkSplitSize == 0 {
		return fmt.Errorf("chunk_split_size must be > 0")
	}
	if c.CheckSnapshotStatusIntervalMs < 1 {
		return fmt.Errorf("check_snapshot_status_interval_ms must be >= 1, got %d",
			c.CheckSnapshotStatusIntervalMs)
	}
	return nil
}

// Save writes configuration to the given path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
