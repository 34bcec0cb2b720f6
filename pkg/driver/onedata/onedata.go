// Package onedata implements the space driver for a Onedata space exposed
// through a oneclient FUSE mount.
//
// The mount is reconciled before every operation, either with local
// subprocesses or through the oneclient REST endpoint of the pod running the
// client. Browsing can be restricted to files fully replicated on the local
// provider. Transfers never copy bytes: files are exposed through symbolic
// links into the mount.
package onedata

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/marmos91/stowage/internal/logger"
	"github.com/marmos91/stowage/pkg/driver"
	"github.com/marmos91/stowage/pkg/mount"
	"github.com/marmos91/stowage/pkg/replica"
	"github.com/marmos91/stowage/pkg/scan"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/marmos91/stowage/pkg/transfer"
)

const (
	// ReservedMountPoint is the oneclient default mount point. A managed
	// space may not use it.
	ReservedMountPoint = "/tmp/oneclient"

	// ArchivematicaSuffix is appended by oneclient's archivematica mode to
	// expose the metadata-enriched view of a path.
	ArchivematicaSuffix = ".__onedata_archivematica"
)

// Options is the backend configuration of a Onedata space.
type Options struct {
	OneproviderHost       string `mapstructure:"oneprovider_host" yaml:"oneprovider_host"`
	AccessToken           string `mapstructure:"access_token" yaml:"access_token"`
	SpaceName             string `mapstructure:"space_name" yaml:"space_name"`
	SpaceGUID             string `mapstructure:"space_guid" yaml:"space_guid"`
	OneclientRESTEndpoint string `mapstructure:"oneclient_rest_endpoint" yaml:"oneclient_rest_endpoint"`
	ManuallyMounted       bool   `mapstructure:"manually_mounted" yaml:"manually_mounted"`
	OnlyLocalReplicas     bool   `mapstructure:"only_local_replicas" yaml:"only_local_replicas"`
	OneclientCLI          string `mapstructure:"oneclient_cli" yaml:"oneclient_cli"`
	ArchivematicaView     bool   `mapstructure:"archivematica_view" yaml:"archivematica_view"`
}

// Driver is the Onedata space driver.
type Driver struct {
	space   space.Space
	opts    Options
	mounter *mount.Manager
	scanner *scan.Scanner
	engine  *transfer.Engine
	browse  scan.Options
}

// Option customizes the driver's collaborators.
type Option func(*config)

type config struct {
	mountOpts []mount.Option
	replicas  replica.Checker
	access    scan.AccessFunc
}

// WithMountOptions passes options to the mount manager.
func WithMountOptions(opts ...mount.Option) Option {
	return func(c *config) { c.mountOpts = append(c.mountOpts, opts...) }
}

// WithReplicaChecker replaces the extended attribute replica checker.
func WithReplicaChecker(r replica.Checker) Option {
	return func(c *config) { c.replicas = r }
}

// WithAccessCheck replaces the directory read permission check.
func WithAccessCheck(f scan.AccessFunc) Option {
	return func(c *config) { c.access = f }
}

// New creates a driver for sp. The configuration is not validated; call
// Validate before persisting it.
func New(sp space.Space, opts Options, settings driver.Settings, options ...Option) *Driver {
	var c config
	for _, o := range options {
		o(&c)
	}

	kind := string(space.KindOnedata)

	mountCfg := mount.Config{
		Kind:            kind,
		MountPoint:      sp.Path(),
		MountCommand:    mountCommand(opts, sp.Path()),
		UnmountCommand:  []string{"fusermount", "-uz", sp.Path()},
		Evidence:        opts.SpaceName,
		ManuallyMounted: opts.ManuallyMounted,
		ExecEndpoint:    opts.OneclientRESTEndpoint,
		ExecTimeout:     settings.ExecTimeout,
		ExecRetryMax:    settings.ExecRetryMax,
		ProbeTimeout:    settings.ProbeTimeout,
		CommandTimeout:  settings.CommandTimeout,
	}
	mountOpts := append([]mount.Option{mount.WithMetrics(settings.MountMetrics)}, c.mountOpts...)

	scanOpts := []scan.Option{
		scan.WithCountCap(settings.CountCap),
		scan.WithMetrics(settings.ScanMetrics, kind),
	}
	if c.replicas != nil {
		scanOpts = append(scanOpts, scan.WithReplicaChecker(c.replicas))
	}
	if c.access != nil {
		scanOpts = append(scanOpts, scan.WithAccessCheck(c.access))
	}

	return &Driver{
		space:   sp,
		opts:    opts,
		mounter: mount.New(mountCfg, mountOpts...),
		scanner: scan.New(scanOpts...),
		engine:  transfer.New(transfer.Link, transfer.WithMetrics(settings.TransferMetrics, kind)),
		browse: scan.Options{
			OnlyLocalReplicas: opts.OnlyLocalReplicas,
			CountingDisabled:  settings.CountingDisabled,
			IncludeHidden:     settings.IncludeHidden,
		},
	}
}

func mountCommand(opts Options, mountPoint string) []string {
	cmd := []string{"oneclient"}
	if opts.ArchivematicaView {
		cmd = append(cmd, "--enable-archivematica")
	}
	cmd = append(cmd,
		"--force-proxy-io",
		"-o", "allow_other",
		"-t", opts.AccessToken,
		"-H", opts.OneproviderHost,
		"--space", opts.SpaceName,
	)
	cmd = append(cmd, strings.Fields(opts.OneclientCLI)...)
	return append(cmd, mountPoint)
}

func (d *Driver) Kind() space.Kind      { return space.KindOnedata }
func (d *Driver) Space() space.Space    { return d.space }
func (d *Driver) Options() Options      { return d.opts }
func (d *Driver) Mount() *mount.Manager { return d.mounter }

// view resolves path inside the space, switching to the archivematica view
// of the path when enabled.
func (d *Driver) view(path string) string {
	p := space.Join(d.space, path)
	if d.opts.ArchivematicaView {
		p += ArchivematicaSuffix
	}
	return p
}

// Browse ensures the space is mounted and lists path.
func (d *Driver) Browse(ctx context.Context, path string) (*space.DirectoryTree, error) {
	p := d.view(path)
	logger.Info("Browsing Onedata path: %s", p)

	if err := d.mounter.EnsureMounted(ctx); err != nil {
		return nil, err
	}
	return d.scanner.Scan(p, d.browse)
}

// MoveToStorageService links every file under src into dst.
func (d *Driver) MoveToStorageService(ctx context.Context, src, dst string, dstSpace space.Space) error {
	from := d.view(filepath.Clean(src))
	to := driver.StagingDestination(dst, dstSpace)

	if err := d.mounter.EnsureMounted(ctx); err != nil {
		return err
	}
	return d.engine.MoveTo(ctx, from, to, dstSpace)
}

// MoveFromStorageService links every file under the staging path src into
// dst inside the space.
func (d *Driver) MoveFromStorageService(ctx context.Context, src, dst string) error {
	from := driver.Resolve(d.space.StagingPath(), src)
	to := space.Join(d.space, dst)

	if err := d.mounter.EnsureMounted(ctx); err != nil {
		return err
	}
	return d.engine.MoveFrom(ctx, from, to, d.space)
}

// EnsureMounted reconciles the mount without performing an operation.
func (d *Driver) EnsureMounted(ctx context.Context) error {
	return d.mounter.EnsureMounted(ctx)
}

// Unmount force-unmounts the space.
func (d *Driver) Unmount(ctx context.Context) error {
	return d.mounter.Unmount(ctx)
}

// Validate rejects an empty mount point and the oneclient default mount
// point. Automatically mounted spaces also need the provider host, token and
// space name used by the mount command.
func (d *Driver) Validate() error {
	if err := driver.ValidatePath(d.space); err != nil {
		return err
	}
	if filepath.Clean(d.space.Path()) == ReservedMountPoint {
		return &space.ConfigurationError{Field: "path", Reason: "must be different than " + ReservedMountPoint}
	}
	if d.opts.ManuallyMounted {
		return nil
	}

	required := []struct{ field, value string }{
		{"oneprovider_host", d.opts.OneproviderHost},
		{"access_token", d.opts.AccessToken},
		{"space_name", d.opts.SpaceName},
	}
	for _, r := range required {
		if r.value == "" {
			return &space.ConfigurationError{Field: r.field, Reason: "required unless manually_mounted is set"}
		}
	}
	return nil
}
