// Package config handles viewer configuration loading and management.
package config

import "time"

// Config holds all viewer settings.
type Config struct {
	Viewer  ViewerConfig  `yaml:"viewer"`
	Subject SubjectConfig `yaml:"subject"`
	Assets  AssetsConfig  `yaml:"assets"`
	Mapping MappingConfig `yaml:"mapping"`
	Memory  MemoryConfig  `yaml:"memory"`
	Debug   DebugConfig   `yaml:"debug"`
	Logging LoggingConfig `yaml:"logging"`
}

// ViewerConfig holds display settings.
type ViewerConfig struct {
	FPS             int     `yaml:"fps"`
	FaceOnly        bool    `yaml:"face_only"`
	PerformanceMode bool    `yaml:"performance_mode"`
	AutoRotate      bool    `yaml:"auto_rotate"`
	AutoRotateSpeed float64 `yaml:"auto_rotate_speed"` // radians per second
}

// SubjectConfig selects the avatar shown at startup.
type SubjectConfig struct {
	Gender   string  `yaml:"gender"`
	ScanID   string  `yaml:"scan_id"`
	SkinTone float64 `yaml:"skin_tone"` // 0 = lightest, 1 = deepest
}

// AssetsConfig selects where model assets are resolved from.
type AssetsConfig struct {
	// Driver is "dir", "s3" or "urls".
	Driver string `yaml:"driver"`
	// URLs maps a gender to a fixed model URL for the "urls" driver.
	URLs map[string]string `yaml:"urls,omitempty"`
	// KeyTemplate maps a gender to an object key or file name; {gender} is
	// substituted.
	KeyTemplate string        `yaml:"key_template"`
	Dir         string        `yaml:"dir"`
	S3          S3Config      `yaml:"s3"`
	URLExpiry   time.Duration `yaml:"url_expiry"`
	// FallbackDir is a secondary location tried once when the primary
	// resolver fails. Empty means retry the primary.
	FallbackDir  string        `yaml:"fallback_dir"`
	CacheEntries int           `yaml:"cache_entries"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// S3Config holds S3 / MinIO connection settings.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// MappingConfig locates the morphology mapping table.
type MappingConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// MemoryConfig holds memory pressure thresholds.
type MemoryConfig struct {
	SoftLimitMB  int           `yaml:"soft_limit_mb"` // 0 disables the monitor
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DebugConfig holds the optional debug HTTP server settings.
type DebugConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Viewer: ViewerConfig{
			FPS:             30,
			AutoRotateSpeed: 0.5,
		},
		Subject: SubjectConfig{
			Gender:   "female",
			SkinTone: 0.35,
		},
		Assets: AssetsConfig{
			Driver:       "dir",
			KeyTemplate:  "{gender}.glb",
			Dir:          "./models",
			URLExpiry:    15 * time.Minute,
			CacheEntries: 4,
			FetchTimeout: 30 * time.Second,
		},
		Mapping: MappingConfig{
			Path:  "./mapping.yaml",
			Watch: true,
		},
		Memory: MemoryConfig{
			SoftLimitMB:  0,
			PollInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
