package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/stowage/pkg/registry"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/spf13/viper"
)

// Config represents the complete Stowage configuration.
//
// This structure captures all configurable aspects of Stowage including:
//   - Logging configuration
//   - Browse (scanner) behavior
//   - Mount lifecycle timeouts and the remote-exec transport
//   - Where space records are persisted
//   - Metrics export
//   - Spaces declared in the file
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (STOWAGE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Space Configuration Pattern:
// Each space kind defines its own options type, decoded by the driver factory.
// SpaceConfig contains kind-specific sections (e.g., onedata, nfs, s3) and
// only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Scanner controls directory browsing
	Scanner ScannerConfig `mapstructure:"scanner" yaml:"scanner"`

	// Mount contains mount lifecycle settings shared by every mounted space
	Mount MountConfig `mapstructure:"mount" yaml:"mount"`

	// Registry selects where space records are stored
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Spaces are saved into the registry at startup
	Spaces []SpaceConfig `mapstructure:"spaces" yaml:"spaces" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ScannerConfig controls directory tree scans.
type ScannerConfig struct {
	// ObjectCountCap bounds the per-directory object count reported by browse.
	ObjectCountCap int `mapstructure:"object_count_cap" yaml:"object_count_cap" validate:"gte=0"`

	// ObjectCountingDisabled skips object counting entirely
	ObjectCountingDisabled bool `mapstructure:"object_counting_disabled" yaml:"object_counting_disabled"`

	// IncludeHidden lists entries whose name starts with a dot
	IncludeHidden bool `mapstructure:"include_hidden" yaml:"include_hidden"`
}

// MountConfig contains mount lifecycle settings.
type MountConfig struct {
	// ProbeTimeout bounds a single liveness probe of the mount point
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout" validate:"gt=0"`

	// CommandTimeout bounds mount, unmount and mkdir commands
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout" validate:"gt=0"`

	// ExecTimeout is the per-request timeout of the remote-exec transport
	ExecTimeout time.Duration `mapstructure:"exec_timeout" yaml:"exec_timeout" validate:"gt=0"`

	// ExecRetryMax is how many times a remote-exec request without an exit
	// code is retried. Negative disables retries.
	ExecRetryMax int `mapstructure:"exec_retry_max" yaml:"exec_retry_max"`
}

// RegistryConfig selects the space record store.
type RegistryConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// Enabled initializes the Prometheus registry
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Textfile is written in the Prometheus text format after each command.
	// Empty disables the export.
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// SpaceConfig declares a single space.
type SpaceConfig struct {
	// Name identifies the space in the registry and on the command line
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// UUID is generated on save when empty
	UUID string `mapstructure:"uuid" yaml:"uuid,omitempty" validate:"omitempty,uuid"`

	// Type selects the driver
	// Valid values: filesystem, nfs, onedata, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem nfs onedata s3"`

	// Path is the space root (the mount point for mounted kinds)
	Path string `mapstructure:"path" yaml:"path"`

	// StagingPath is where transfers stage files locally
	StagingPath string `mapstructure:"staging_path" yaml:"staging_path"`

	// Onedata contains Onedata-specific configuration
	// Only used when Type = "onedata"
	Onedata map[string]any `mapstructure:"onedata" yaml:"onedata,omitempty"`

	// NFS contains NFS-specific configuration
	// Only used when Type = "nfs"
	NFS map[string]any `mapstructure:"nfs" yaml:"nfs,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// Record converts the declaration into a registry record carrying only the
// options section matching its type.
func (s SpaceConfig) Record() registry.Record {
	rec := registry.Record{
		Name:        s.Name,
		UUID:        s.UUID,
		Type:        space.Kind(s.Type),
		Path:        s.Path,
		StagingPath: s.StagingPath,
	}
	switch space.Kind(s.Type) {
	case space.KindOnedata:
		rec.Options = s.Onedata
	case space.KindNFS:
		rec.Options = s.NFS
	case space.KindS3:
		rec.Options = s.S3
	}
	return rec
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (STOWAGE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use STOWAGE_ prefix and underscores
	// Example: STOWAGE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("STOWAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"scanner.object_count_cap", "scanner.object_counting_disabled", "scanner.include_hidden",
		"mount.probe_timeout", "mount.command_timeout", "mount.exec_timeout", "mount.exec_retry_max",
		"registry.type", "metrics.enabled", "metrics.textfile",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/stowage/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "stowage")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "stowage")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
