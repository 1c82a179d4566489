package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Convert.Timeout != 60*time.Second {
		t.Errorf("Expected convert timeout 60s, got %v", cfg.Convert.Timeout)
	}
	if cfg.Invitation.TTL != 7*24*time.Hour {
		t.Errorf("Expected invitation TTL 168h, got %v", cfg.Invitation.TTL)
	}
	if !cfg.Pipeline.LenientDates {
		t.Error("Expected lenient dates by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate without an LLM key: %v", err)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
server:
  http_addr: ":9000"
  max_upload_bytes: 2048
llm:
  model: file-model
  timeout: 30s
pipeline:
  lenient_dates: false
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APP_CONFIG_FILE", path)
	t.Setenv("OPENAI_MODEL", "env-model")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("Expected :9000, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Server.MaxUploadBytes != 2048 {
		t.Errorf("Expected 2048, got %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("Expected env to override file, got %s", cfg.LLM.Model)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("Expected 30s from file, got %v", cfg.LLM.Timeout)
	}
	if cfg.Pipeline.LenientDates {
		t.Error("Expected lenient dates disabled by file")
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadConfig()
	if !IsCode(err, CodeConfiguration) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "ftp" }, false},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = "s3" }, false},
		{"minio without endpoint", func(c *Config) { c.Storage.Driver = "minio"; c.Storage.Bucket = "docs" }, false},
		{"smtp without host", func(c *Config) { c.Mail.Driver = "smtp" }, false},
		{"zero upload cap", func(c *Config) { c.Server.MaxUploadBytes = 0 }, false},
		{"async without workers", func(c *Config) { c.Pipeline.Async = true; c.Pipeline.Workers = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Expected valid config, got %v", err)
			}
			if !tt.ok && !IsCode(err, CodeConfiguration) {
				t.Errorf("Expected configuration error, got %v", err)
			}
		})
	}
}
