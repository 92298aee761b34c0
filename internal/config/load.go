package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	cfg := Default()

	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := LoadFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the viewer cannot run with.
func (c *Config) Validate() error {
	switch c.Assets.Driver {
	case "dir":
		if c.Assets.Dir == "" {
			return fmt.Errorf("assets.dir required for dir driver")
		}
	case "s3":
		if c.Assets.S3.Bucket == "" {
			return fmt.Errorf("assets.s3.bucket required for s3 driver")
		}
	case "urls":
		if len(c.Assets.URLs) == 0 {
			return fmt.Errorf("assets.urls required for urls driver")
		}
	default:
		return fmt.Errorf("unknown assets.driver %q", c.Assets.Driver)
	}
	if c.Subject.Gender == "" {
		return fmt.Errorf("subject.gender required")
	}
	if c.Viewer.FPS <= 0 {
		return fmt.Errorf("viewer.fps must be positive, got %d", c.Viewer.FPS)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./avatarview.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "avatarview")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "avatarview")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "avatarview")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "avatarview")
	}
}

// LoadFile merges a YAML file into cfg.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// SaveTo writes the config to a specific path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
