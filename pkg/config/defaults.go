package config

import (
	"path/filepath"
	"strings"

	"github.com/marmos91/stowage/pkg/mount"
	"github.com/marmos91/stowage/pkg/scan"
)

// Remote-exec transport defaults.
const (
	DefaultExecTimeout  = mount.DefaultExecTimeout
	DefaultExecRetryMax = mount.DefaultExecRetryMax
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Space-specific defaults are handled by the drivers
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyScannerDefaults(&cfg.Scanner)
	applyMountDefaults(&cfg.Mount)
	applyRegistryDefaults(&cfg.Registry)
	applySpaceDefaults(cfg.Spaces)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyScannerDefaults(cfg *ScannerConfig) {
	if cfg.ObjectCountCap == 0 {
		cfg.ObjectCountCap = scan.DefaultCountCap
	}
}

func applyMountDefaults(cfg *MountConfig) {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = mount.DefaultProbeTimeout
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = mount.DefaultCommandTimeout
	}
	if cfg.ExecTimeout == 0 {
		cfg.ExecTimeout = DefaultExecTimeout
	}
	if cfg.ExecRetryMax == 0 {
		cfg.ExecRetryMax = DefaultExecRetryMax
	}
}

func applyRegistryDefaults(cfg *RegistryConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = filepath.Join(getConfigDir(), "spaces")
	}
}

func applySpaceDefaults(spaces []SpaceConfig) {
	for i := range spaces {
		sp := &spaces[i]
		sp.Type = strings.ToLower(sp.Type)
		if sp.StagingPath == "" && sp.Path != "" {
			sp.StagingPath = sp.Path
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Registry: RegistryConfig{Type: "badger"},
		Spaces: []SpaceConfig{
			{
				Name:        "local",
				Type:        "filesystem",
				Path:        "/var/archivematica/storage",
				StagingPath: "/var/archivematica/storage/staging",
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
