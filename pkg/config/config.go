package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration loaded from a yaml file.
type Config struct {
	// DataDir is where the bbolt document store lives.
	DataDir string `yaml:"data_dir"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// MaxSchedulers caps the number of schedulers started at boot.
	MaxSchedulers int `yaml:"max_schedulers"`

	// IndexBlockSize is the batch size of the index rebuild job.
	IndexBlockSize int `yaml:"index_block_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:        "./data",
		LogLevel:       "info",
		MaxSchedulers:  100,
		IndexBlockSize: 500,
	}
}

// Load reads a yaml configuration file on top of the defaults. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.MaxSchedulers <= 0 {
		cfg.MaxSchedulers = 100
	}
	if cfg.IndexBlockSize <= 0 {
		cfg.IndexBlockSize = 500
	}
	return cfg, nil
}
