// Package config loads the on-disk configuration for pagecache's
// command-line tools: logging, telemetry, and the buffer pool itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/riverstonedb/pagecache/pkg/logger"
	"github.com/riverstonedb/pagecache/pkg/telemetry"
)

// PoolConfig controls the Cache and its reference Evicter and
// Serializer.
type PoolConfig struct {
	// DataDir is where the file-backed serializer stores block data.
	DataDir string `yaml:"data_dir"`
	// BlockSize is the fixed size, in bytes, of every block the
	// serializer stores.
	BlockSize uint32 `yaml:"block_size"`
	// MaxTrackedPages bounds the evicter's disk-backed LRU capacity.
	MaxTrackedPages int `yaml:"max_tracked_pages"`
	// IOAccountWeight bounds concurrent in-flight BlockReads.
	IOAccountWeight int64 `yaml:"io_account_weight"`
}

// Config is the top-level configuration document.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Pool      PoolConfig       `yaml:"pool"`
}

// Default returns a Config with reasonable defaults for local use.
func Default() Config {
	return Config{
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stdout",
		},
		Telemetry: telemetry.Config{
			Enabled:          false,
			ServiceName:      "pagecached",
			PrometheusPort:   9090,
			TraceSampleRatio: 1.0,
		},
		Pool: PoolConfig{
			DataDir:         "./data",
			BlockSize:       4096,
			MaxTrackedPages: 4096,
			IOAccountWeight: 32,
		},
	}
}

// Load reads and parses a YAML config file at path, filling in defaults
// for anything it doesn't set.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
