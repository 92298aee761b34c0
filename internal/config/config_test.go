package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Viewer.FPS != 30 {
		t.Errorf("expected fps 30, got %d", cfg.Viewer.FPS)
	}
	if cfg.Subject.Gender != "female" {
		t.Errorf("expected default gender female, got %s", cfg.Subject.Gender)
	}
	if cfg.Assets.Driver != "dir" {
		t.Errorf("expected dir driver, got %s", cfg.Assets.Driver)
	}
	if cfg.Assets.URLExpiry != 15*time.Minute {
		t.Errorf("expected 15m url expiry, got %v", cfg.Assets.URLExpiry)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
viewer:
  fps: 60
  face_only: true
subject:
  gender: male
  scan_id: scan-42
assets:
  driver: s3
  s3:
    bucket: avatars
    region: eu-west-1
    path_style: true
  url_expiry: 5m
  fallback_dir: /srv/models
memory:
  soft_limit_mb: 512
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Viewer.FPS != 60 || !cfg.Viewer.FaceOnly {
		t.Errorf("viewer section not loaded: %+v", cfg.Viewer)
	}
	if cfg.Subject.Gender != "male" || cfg.Subject.ScanID != "scan-42" {
		t.Errorf("subject section not loaded: %+v", cfg.Subject)
	}
	if cfg.Assets.S3.Bucket != "avatars" || !cfg.Assets.S3.PathStyle {
		t.Errorf("s3 section not loaded: %+v", cfg.Assets.S3)
	}
	if cfg.Assets.URLExpiry != 5*time.Minute {
		t.Errorf("expected 5m expiry, got %v", cfg.Assets.URLExpiry)
	}
	if cfg.Memory.SoftLimitMB != 512 {
		t.Errorf("expected soft limit 512, got %d", cfg.Memory.SoftLimitMB)
	}
	// Untouched keys keep their defaults.
	if cfg.Assets.KeyTemplate != "{gender}.glb" {
		t.Errorf("key template default lost: %q", cfg.Assets.KeyTemplate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Assets.Driver = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Assets.Driver = "s3" }},
		{"dir without path", func(c *Config) { c.Assets.Dir = "" }},
		{"urls without entries", func(c *Config) { c.Assets.Driver = "urls" }},
		{"no gender", func(c *Config) { c.Subject.Gender = "" }},
		{"zero fps", func(c *Config) { c.Viewer.FPS = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Subject.ScanID = "scan-7"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded := Default()
	if err := LoadFile(loaded, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Subject.ScanID != "scan-7" {
		t.Errorf("scan id not persisted, got %q", loaded.Subject.ScanID)
	}
}
