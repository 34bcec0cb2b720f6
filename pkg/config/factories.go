package config

import (
	"context"
	"fmt"

	"github.com/marmos91/stowage/internal/logger"
	"github.com/marmos91/stowage/pkg/driver"
	"github.com/marmos91/stowage/pkg/driver/fs"
	"github.com/marmos91/stowage/pkg/driver/nfs"
	"github.com/marmos91/stowage/pkg/driver/onedata"
	driverS3 "github.com/marmos91/stowage/pkg/driver/s3"
	"github.com/marmos91/stowage/pkg/registry"
	registryBadger "github.com/marmos91/stowage/pkg/registry/badger"
	"github.com/marmos91/stowage/pkg/registry/memory"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/mitchellh/mapstructure"
)

// decodeOptions decodes a type-specific options map into out.
//
// Input is weakly typed: records read back from the JSON store carry numbers
// as float64 and environment overrides arrive as strings.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// DriverSettings builds the driver settings shared by every space from the
// configuration and the metrics components.
func DriverSettings(cfg *Config, m *MetricsResult) driver.Settings {
	s := driver.Settings{
		CountCap:         cfg.Scanner.ObjectCountCap,
		CountingDisabled: cfg.Scanner.ObjectCountingDisabled,
		IncludeHidden:    cfg.Scanner.IncludeHidden,
		ProbeTimeout:     cfg.Mount.ProbeTimeout,
		CommandTimeout:   cfg.Mount.CommandTimeout,
		ExecTimeout:      cfg.Mount.ExecTimeout,
		ExecRetryMax:     cfg.Mount.ExecRetryMax,
	}
	if m != nil {
		s.MountMetrics = m.Mount
		s.TransferMetrics = m.Transfer
		s.ScanMetrics = m.Scan
		s.S3Metrics = m.S3
	}
	return s
}

// DriverFactory returns the registry factory building drivers for records.
//
// This factory uses the record's Type to determine which driver to create,
// then decodes the type-specific options and passes them to the driver's
// constructor.
//
// Supported types:
//   - "filesystem": pkg/driver/fs (local directory, no mount management)
//   - "nfs": pkg/driver/nfs (kernel NFS mount)
//   - "onedata": pkg/driver/onedata (oneclient FUSE mount)
//   - "s3": pkg/driver/s3 (Amazon S3 or compatible storage)
func DriverFactory(cfg *Config, m *MetricsResult) registry.Factory {
	settings := DriverSettings(cfg, m)

	return func(ctx context.Context, rec registry.Record) (space.Driver, error) {
		sp := space.NewLocal(rec.Path, rec.StagingPath)

		switch rec.Type {
		case space.KindFilesystem:
			return fs.New(sp, settings), nil
		case space.KindNFS:
			return createNFSDriver(sp, rec.Options, settings)
		case space.KindOnedata:
			return createOnedataDriver(sp, rec.Options, settings)
		case space.KindS3:
			return createS3Driver(ctx, sp, rec.Options, settings)
		default:
			return nil, &space.ConfigurationError{
				Field:  "type",
				Reason: fmt.Sprintf("unknown space type %q", rec.Type),
			}
		}
	}
}

func createNFSDriver(sp space.Space, options map[string]any, settings driver.Settings) (space.Driver, error) {
	var opts nfs.Options
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode nfs space config: %w", err)
	}
	return nfs.New(sp, opts, settings), nil
}

func createOnedataDriver(sp space.Space, options map[string]any, settings driver.Settings) (space.Driver, error) {
	var opts onedata.Options
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode onedata space config: %w", err)
	}
	return onedata.New(sp, opts, settings), nil
}

func createS3Driver(ctx context.Context, sp space.Space, options map[string]any, settings driver.Settings) (space.Driver, error) {
	var opts driverS3.Options
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode s3 space config: %w", err)
	}

	// Validate required fields before loading the AWS config
	if opts.Bucket == "" {
		return nil, &space.ConfigurationError{Field: "bucket", Reason: "is required"}
	}
	if opts.Region == "" {
		return nil, &space.ConfigurationError{Field: "region", Reason: "is required"}
	}

	client, err := driverS3.NewClient(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return driverS3.New(sp, opts, client, settings), nil
}

// CreateStore creates the space record store selected by the configuration.
//
// Supported types:
//   - "memory": records live for the lifetime of the process
//   - "badger": records persist in a BadgerDB directory
func CreateStore(ctx context.Context, cfg *RegistryConfig) (registry.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "badger":
		return createBadgerStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown registry type: %q", cfg.Type)
	}
}

func createBadgerStore(ctx context.Context, options map[string]any) (registry.Store, error) {
	type BadgerStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg BadgerStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger registry config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("badger registry: path is required")
	}

	store, err := registryBadger.New(ctx, registryBadger.Config{Path: storeCfg.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger registry: %w", err)
	}
	return store, nil
}

// InitializeRegistry creates the store, loads previously saved spaces and
// saves every space declared in the configuration.
//
// Spaces declared in the file are saved on every start so that edits to the
// file take effect; a space that fails validation is logged and skipped. The
// stored UUID is kept, and so is the verification state unless the space's
// type or path changed.
func InitializeRegistry(ctx context.Context, cfg *Config, m *MetricsResult) (*registry.Registry, error) {
	store, err := CreateStore(ctx, &cfg.Registry)
	if err != nil {
		return nil, err
	}

	reg := registry.New(store, DriverFactory(cfg, m))
	if err := reg.Open(ctx); err != nil {
		logger.Warn("Some stored spaces could not be loaded: %v", err)
	}

	for _, sc := range cfg.Spaces {
		rec := sc.Record()
		if prev, err := reg.Record(ctx, rec.Name); err == nil {
			// Keep the UUID assigned by an earlier save
			if rec.UUID == "" {
				rec.UUID = prev.UUID
			}
			// Verification holds while the space still points at the same location
			if prev.Type == rec.Type && prev.Path == rec.Path {
				rec.Verified = prev.Verified
				rec.LastVerified = prev.LastVerified
			}
		}
		if _, err := reg.Save(ctx, rec); err != nil {
			logger.Error("Failed to save space %q: %v", rec.Name, err)
		}
	}

	return reg, nil
}
