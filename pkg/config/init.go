package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# Stowage Configuration File
#
# Environment variables override file values: STOWAGE_<SECTION>_<KEY>,
# e.g. STOWAGE_LOGGING_LEVEL=DEBUG.
#
# Each space selects a driver with "type" (filesystem, nfs, onedata, s3) and
# reads its driver options from the section of the same name.

`

// InitConfig writes the default configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := WriteDefaultConfig(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// WriteDefaultConfig writes the default configuration as YAML to path,
// creating parent directories as needed.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(GetDefaultConfig()); err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}

	// The file may hold access tokens once edited
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
