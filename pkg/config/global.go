package config

import (
	"encoding/json"
	"fmt"
	"os"

	"dario.cat/mergo"
)

// Default values seeded into <root>/config.json when absent (spec §4.1).
const (
	DefaultIngestPort = 9090
	DefaultHTTPPort   = 9091
	DefaultBufferSize = 10000
)

// GlobalConfig is the collector-wide configuration persisted at
// <root>/config.json.
type GlobalConfig struct {
	DefaultPort int `json:"defaultPort"`
	BufferSize  int `json:"bufferSize"`
	HTTPPort    int `json:"httpPort"`
}

// DefaultGlobalConfig returns the built-in defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		DefaultPort: DefaultIngestPort,
		BufferSize:  DefaultBufferSize,
		HTTPPort:    DefaultHTTPPort,
	}
}

// LoadGlobalConfig reads and parses <root>/config.json, merging it over the
// built-in defaults so that fields omitted from the file on disk (e.g. a
// config.json written before a new field existed) keep their default value
// rather than zeroing out.
func LoadGlobalConfig(path string) (*GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	var onDisk GlobalConfig
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	cfg := DefaultGlobalConfig()
	if err := mergo.Merge(cfg, onDisk, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge global config: %w", err)
	}
	return cfg, nil
}

// WriteGlobalConfig seeds path with cfg if it does not already exist.
// Idempotent: a second call with the same path is a no-op.
func WriteGlobalConfig(path string, cfg *GlobalConfig) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
