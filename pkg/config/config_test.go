package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/stowage/pkg/space"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "info"

spaces:
  - name: "archive"
    type: "filesystem"
    path: "/srv/archive"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Scanner.ObjectCountCap != 5000 {
		t.Errorf("Expected default object_count_cap 5000, got %d", cfg.Scanner.ObjectCountCap)
	}
	if cfg.Mount.ProbeTimeout != 10*time.Second {
		t.Errorf("Expected default probe_timeout 10s, got %v", cfg.Mount.ProbeTimeout)
	}
	if cfg.Mount.ExecRetryMax != 2 {
		t.Errorf("Expected default exec_retry_max 2, got %d", cfg.Mount.ExecRetryMax)
	}
	if cfg.Registry.Type != "memory" {
		t.Errorf("Expected default registry type 'memory', got %q", cfg.Registry.Type)
	}
	if len(cfg.Spaces) != 1 || cfg.Spaces[0].StagingPath != "/srv/archive" {
		t.Errorf("Expected staging path to default to the space path, got %+v", cfg.Spaces)
	}
}

func TestLoad_SpaceOptions(t *testing.T) {
	configPath := writeConfig(t, `
mount:
  probe_timeout: 3s
  exec_retry_max: -1

spaces:
  - name: "onedata"
    type: "onedata"
    path: "/mnt/onedata"
    staging_path: "/var/staging"
    onedata:
      oneprovider_host: "provider.example.org"
      access_token: "token"
      space_name: "archive"
      only_local_replicas: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Mount.ProbeTimeout != 3*time.Second {
		t.Errorf("Expected probe_timeout 3s, got %v", cfg.Mount.ProbeTimeout)
	}
	if cfg.Mount.ExecRetryMax != -1 {
		t.Errorf("Expected exec_retry_max -1 to be kept, got %d", cfg.Mount.ExecRetryMax)
	}

	rec := cfg.Spaces[0].Record()
	if rec.Type != space.KindOnedata {
		t.Errorf("Expected type onedata, got %q", rec.Type)
	}
	if rec.Options["space_name"] != "archive" {
		t.Errorf("Expected onedata options in record, got %v", rec.Options)
	}
	if rec.StagingPath != "/var/staging" {
		t.Errorf("Expected staging path '/var/staging', got %q", rec.StagingPath)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use a non-existent path so the user's own config is never read
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if len(cfg.Spaces) != 0 {
		t.Errorf("Expected no spaces, got %d", len(cfg.Spaces))
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "logging:\n  level: [unterminated\n")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "INFO"
`)

	t.Setenv("STOWAGE_LOGGING_LEVEL", "debug")
	t.Setenv("STOWAGE_SCANNER_OBJECT_COUNT_CAP", "250")
	t.Setenv("STOWAGE_SCANNER_OBJECT_COUNTING_DISABLED", "true")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env override level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Scanner.ObjectCountCap != 250 {
		t.Errorf("Expected env override cap 250, got %d", cfg.Scanner.ObjectCountCap)
	}
	if !cfg.Scanner.ObjectCountingDisabled {
		t.Error("Expected object counting to be disabled by env override")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
spaces:
  - name: "bad"
    type: "ftp"
    path: "/srv"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected validation error for unknown space type")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("Expected validation error, got: %v", err)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	if got := GetDefaultConfigPath(); got != "/xdg/stowage/config.yaml" {
		t.Errorf("Expected /xdg/stowage/config.yaml, got %q", got)
	}
}
