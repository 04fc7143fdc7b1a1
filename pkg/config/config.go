// Package config loads the MiniSQL engine configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sushant-115/minisql/pkg/logger"
	"github.com/sushant-115/minisql/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	// DataDir holds the database files opened by name.
	DataDir    string           `yaml:"data_dir"`
	BufferPool BufferPoolConfig `yaml:"buffer_pool"`
	Index      IndexConfig      `yaml:"index"`
	Backup     BackupConfig     `yaml:"backup"`
	Logger     logger.Config    `yaml:"logger"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

type BufferPoolConfig struct {
	// Size is the number of page frames.
	Size int `yaml:"size"`
	// Replacer is "lru" or "clock".
	Replacer string `yaml:"replacer"`
}

// IndexConfig sets B+ tree node fan-out. 0 derives it from the page capacity.
type IndexConfig struct {
	LeafMaxSize     int `yaml:"leaf_max_size"`
	InternalMaxSize int `yaml:"internal_max_size"`
}

type BackupConfig struct {
	// BytesPerSecond throttles online backups. 0 means unlimited.
	BytesPerSecond int64 `yaml:"bytes_per_second"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir: "data",
		BufferPool: BufferPoolConfig{
			Size:     1024,
			Replacer: "lru",
		},
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stderr",
		},
		Telemetry: telemetry.Config{
			ServiceName:      "minisql",
			PrometheusPort:   9464,
			TraceSampleRatio: 1.0,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	if c.BufferPool.Size <= 0 {
		errs = append(errs, fmt.Errorf("buffer_pool.size must be positive, got %d", c.BufferPool.Size))
	}
	switch strings.ToLower(c.BufferPool.Replacer) {
	case "lru", "clock":
	default:
		errs = append(errs, fmt.Errorf("buffer_pool.replacer must be lru or clock, got %q", c.BufferPool.Replacer))
	}
	if c.Index.LeafMaxSize != 0 && c.Index.LeafMaxSize < 2 {
		errs = append(errs, fmt.Errorf("index.leaf_max_size must be 0 or at least 2, got %d", c.Index.LeafMaxSize))
	}
	if c.Index.InternalMaxSize != 0 && c.Index.InternalMaxSize < 3 {
		errs = append(errs, fmt.Errorf("index.internal_max_size must be 0 or at least 3, got %d", c.Index.InternalMaxSize))
	}
	if c.Backup.BytesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("backup.bytes_per_second must not be negative, got %d", c.Backup.BytesPerSecond))
	}
	if p := c.Telemetry.PrometheusPort; p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("telemetry.prometheus_port out of range: %d", p))
	}
	return errors.Join(errs...)
}
