package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
)

// ProjectSettings holds the per-project overrides layered over the global
// defaults.
type ProjectSettings struct {
	BufferSize    int `json:"bufferSize,omitempty"`
	RetentionDays int `json:"retentionDays,omitempty"`
}

// DefaultSessionRetentionDays is the recommended default when a project does
// not specify RetentionDays (spec §9 Open Question).
const DefaultSessionRetentionDays = 30

// ProjectConfig is persisted at <root>/projects/<name>/config.json.
type ProjectConfig struct {
	Name       string          `json:"name"`
	CreatedAt  time.Time       `json:"createdAt"`
	SDKVersion string          `json:"sdkVersion,omitempty"`
	Settings   ProjectSettings `json:"settings"`
}

// RetentionDays returns the project's configured retention, falling back to
// DefaultSessionRetentionDays when unset.
func (c *ProjectConfig) RetentionDays() int {
	if c.Settings.RetentionDays > 0 {
		return c.Settings.RetentionDays
	}
	return DefaultSessionRetentionDays
}

// NewProjectConfig builds the default config seeded for a freshly created project.
func NewProjectConfig(name string) *ProjectConfig {
	return &ProjectConfig{
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Settings: ProjectSettings{
			RetentionDays: DefaultSessionRetentionDays,
		},
	}
}

// LoadProjectConfig reads and parses a project config.json, merging its
// Settings over the built-in defaults so an on-disk file written before
// RetentionDays existed still resolves to DefaultSessionRetentionDays
// instead of zero.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	var onDisk ProjectConfig
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	cfg := &ProjectConfig{Settings: ProjectSettings{RetentionDays: DefaultSessionRetentionDays}}
	if err := mergo.Merge(cfg, onDisk, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge project config: %w", err)
	}
	return cfg, nil
}

// WriteProjectConfig seeds path with cfg if absent; idempotent.
func WriteProjectConfig(path string, cfg *ProjectConfig) error {
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
