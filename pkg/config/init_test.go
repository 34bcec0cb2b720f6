package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# Stowage Configuration File",
		"logging:",
		"scanner:",
		"mount:",
		"registry:",
		"metrics:",
		"spaces:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}

	if _, err := InitConfig(true); err != nil {
		t.Errorf("Expected force to overwrite, got: %v", err)
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := WriteDefaultConfig(path, false); err != nil {
		t.Fatalf("WriteDefaultConfig failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config does not load: %v", err)
	}

	def := GetDefaultConfig()
	if cfg.Mount.ProbeTimeout != def.Mount.ProbeTimeout {
		t.Errorf("Expected probe timeout %v, got %v", def.Mount.ProbeTimeout, cfg.Mount.ProbeTimeout)
	}
	if cfg.Registry.Type != "badger" {
		t.Errorf("Expected registry type 'badger', got %q", cfg.Registry.Type)
	}
	if len(cfg.Spaces) != 1 || cfg.Spaces[0].Name != "local" {
		t.Errorf("Expected sample space 'local', got %+v", cfg.Spaces)
	}
}
