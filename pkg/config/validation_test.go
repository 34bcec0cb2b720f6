package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{
		Spaces: []SpaceConfig{
			{Name: "local", Type: "filesystem", Path: "/srv/local"},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "TRACE" },
			wantErr: "Level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "negative count cap",
			mutate:  func(c *Config) { c.Scanner.ObjectCountCap = -1 },
			wantErr: "ObjectCountCap",
		},
		{
			name:    "unknown registry type",
			mutate:  func(c *Config) { c.Registry.Type = "postgres" },
			wantErr: "Registry.Type",
		},
		{
			name: "badger without path",
			mutate: func(c *Config) {
				c.Registry.Type = "badger"
				c.Registry.Badger = map[string]any{"path": ""}
			},
			wantErr: "registry.badger",
		},
		{
			name: "duplicate space names",
			mutate: func(c *Config) {
				c.Spaces = append(c.Spaces, SpaceConfig{Name: "local", Type: "filesystem", Path: "/srv/other"})
			},
			wantErr: "duplicate space name",
		},
		{
			name:    "space without name",
			mutate:  func(c *Config) { c.Spaces[0].Name = "" },
			wantErr: "Name",
		},
		{
			name:    "unknown space type",
			mutate:  func(c *Config) { c.Spaces[0].Type = "ftp" },
			wantErr: "Type",
		},
		{
			name:    "invalid uuid",
			mutate:  func(c *Config) { c.Spaces[0].UUID = "not-a-uuid" },
			wantErr: "UUID",
		},
		{
			name:    "missing path",
			mutate:  func(c *Config) { c.Spaces[0].Path = "" },
			wantErr: "path is required",
		},
		{
			name: "s3 without path",
			mutate: func(c *Config) {
				c.Spaces[0] = SpaceConfig{Name: "bucket", Type: "s3"}
			},
		},
		{
			name: "onedata on reserved mount point",
			mutate: func(c *Config) {
				c.Spaces[0] = SpaceConfig{Name: "od", Type: "onedata", Path: "/tmp/oneclient/"}
			},
			wantErr: "reserved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
