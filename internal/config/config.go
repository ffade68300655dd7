// Package config provides configuration loading for connectome. Values come from a YAML file
// and fall back to defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/KyungWonPark/connectome/internal/logging"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is named on the command line.
const DefaultPath = "connectome.yaml"

// Config represents the application configuration loaded from YAML
type Config struct {
	// AllowList is a "name,label" table of regions kept when restriction is requested,
	// e.g. FreeSurfer grey matter labels.
	AllowList string `yaml:"allowList"`

	// BrainMask, when set, limits every region to voxels inside this 3D mask.
	BrainMask string `yaml:"brainMask"`

	Output struct {
		// Dir is where batch runs write their matrices.
		Dir string `yaml:"dir"`

		// UpperTriangle zeroes the lower left triangle of saved matrices.
		UpperTriangle bool `yaml:"upperTriangle"`

		// Provenance writes a companion .txt file listing the inputs of every matrix.
		Provenance bool `yaml:"provenance"`
	} `yaml:"output"`

	Batch struct {
		// Workers is the number of subjects processed at once.
		Workers int `yaml:"workers"`
	} `yaml:"batch"`

	Logging logging.Config `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Output.Dir = "."
	cfg.Output.Provenance = true

	cfg.Batch.Workers = runtime.NumCPU()

	cfg.Logging.MaxSize = 100
	cfg.Logging.MaxAge = 30

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate checks settings that have no sensible fallback.
func (cfg *Config) Validate() error {
	if cfg.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1, got %d", cfg.Batch.Workers)
	}
	if cfg.Logging.Logfile != "" && (cfg.Logging.MaxSize < 0 || cfg.Logging.MaxAge < 0) {
		return fmt.Errorf("logging.maxSize and logging.maxAge must not be negative")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
