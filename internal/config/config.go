// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/duetlabs/duet/internal/core"
	"github.com/duetlabs/duet/internal/scoring"
	"github.com/duetlabs/duet/internal/storage"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Recording RecordingConfig `yaml:"recording,omitempty"`
	Scoring   ScoringConfig   `yaml:"scoring,omitempty"`
	Prompts   PromptsConfig   `yaml:"prompts,omitempty"`
}

// ServerConfig holds web server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// RecordingConfig holds capture settings.
type RecordingConfig struct {
	PreferredKind    string `yaml:"preferred_kind"`
	CountdownSeconds int    `yaml:"countdown_seconds"`
}

// ScoringConfig holds scoring settings.
type ScoringConfig struct {
	StarScale float64 `yaml:"star_scale"`
}

// PromptsConfig holds prompt bank settings.
type PromptsConfig struct {
	// ExtraBanks lists YAML files appended to the built-in prompt bank.
	ExtraBanks []string `yaml:"extra_banks,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8182,
		},
		Storage: StorageConfig{
			Path: storage.DefaultDBPath(),
		},
		Recording: RecordingConfig{
			PreferredKind:    string(core.KindVideo),
			CountdownSeconds: 3,
		},
		Scoring: ScoringConfig{
			StarScale: scoring.DefaultScale,
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from a specific path. A missing file yields
// the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Apply .env overrides if file exists
	if env, err := LoadEnv(".env"); err == nil {
		ApplyEnvOverrides(cfg, env)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize clamps out-of-range values back to usable ones.
func (c *Config) normalize() {
	if c.Recording.PreferredKind != string(core.KindAudio) && c.Recording.PreferredKind != string(core.KindVideo) {
		c.Recording.PreferredKind = string(core.KindVideo)
	}
	if c.Recording.CountdownSeconds <= 0 {
		c.Recording.CountdownSeconds = 3
	}
	if c.Scoring.StarScale == 0 {
		c.Scoring.StarScale = scoring.DefaultScale
	}
	c.Scoring.StarScale = scoring.ClampScale(c.Scoring.StarScale)
	if c.Server.Port <= 0 {
		c.Server.Port = 8182
	}
	if c.Storage.Path == "" {
		c.Storage.Path = storage.DefaultDBPath()
	}
}

// PreferredKind returns the configured capture kind.
func (c *Config) PreferredKind() core.CaptureKind {
	if c.Recording.PreferredKind == string(core.KindAudio) {
		return core.KindAudio
	}
	return core.KindVideo
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo saves the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "duet.yaml"
	}
	return filepath.Join(home, ".duet", "config.yaml")
}
