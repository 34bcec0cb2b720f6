// Package nfs implements the space driver for an NFS export mounted through
// the kernel client.
package nfs

import (
	"context"
	"strings"

	"github.com/marmos91/stowage/pkg/driver"
	"github.com/marmos91/stowage/pkg/mount"
	"github.com/marmos91/stowage/pkg/replica"
	"github.com/marmos91/stowage/pkg/scan"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/marmos91/stowage/pkg/transfer"
)

// DefaultVersion is the filesystem type passed to mount(8).
const DefaultVersion = "nfs4"

// Options is the backend configuration of an NFS space.
type Options struct {
	// RemoteName is the NFS server host.
	RemoteName string `mapstructure:"remote_name" yaml:"remote_name"`

	// RemotePath is the exported path on the server.
	RemotePath string `mapstructure:"remote_path" yaml:"remote_path"`

	// Version is the mount type, "nfs" or "nfs4".
	Version string `mapstructure:"version" yaml:"version"`

	ManuallyMounted bool `mapstructure:"manually_mounted" yaml:"manually_mounted"`

	// MountOptions is passed as-is to mount -o.
	MountOptions string `mapstructure:"mount_options" yaml:"mount_options"`
}

// Driver mounts the export on the space path and copies files in and out.
type Driver struct {
	space   space.Space
	opts    Options
	mounter *mount.Manager
	scanner *scan.Scanner
	engine  *transfer.Engine
	browse  scan.Options
}

// New creates an NFS driver. mountOpts are passed to the mount manager.
func New(sp space.Space, opts Options, settings driver.Settings, mountOpts ...mount.Option) *Driver {
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	kind := string(space.KindNFS)

	cfg := mount.Config{
		Kind:            kind,
		MountPoint:      sp.Path(),
		MountCommand:    mountCommand(opts, sp.Path()),
		UnmountCommand:  []string{"umount", "-f", "-l", sp.Path()},
		ManuallyMounted: opts.ManuallyMounted,
		ProbeTimeout:    settings.ProbeTimeout,
		CommandTimeout:  settings.CommandTimeout,
	}

	return &Driver{
		space:   sp,
		opts:    opts,
		mounter: mount.New(cfg, append([]mount.Option{mount.WithMetrics(settings.MountMetrics)}, mountOpts...)...),
		scanner: scan.New(
			scan.WithReplicaChecker(replica.AllReplicas{}),
			scan.WithCountCap(settings.CountCap),
			scan.WithMetrics(settings.ScanMetrics, kind),
		),
		engine: transfer.New(transfer.Copy, transfer.WithMetrics(settings.TransferMetrics, kind)),
		browse: scan.Options{
			CountingDisabled: settings.CountingDisabled,
			IncludeHidden:    settings.IncludeHidden,
		},
	}
}

func mountCommand(opts Options, mountPoint string) []string {
	cmd := []string{"mount", "-t", opts.Version}
	if opts.MountOptions != "" {
		cmd = append(cmd, "-o", opts.MountOptions)
	}
	return append(cmd, opts.RemoteName+":"+opts.RemotePath, mountPoint)
}

func (d *Driver) Kind() space.Kind   { return space.KindNFS }
func (d *Driver) Space() space.Space { return d.space }

// Browse ensures the export is mounted and lists path.
func (d *Driver) Browse(ctx context.Context, path string) (*space.DirectoryTree, error) {
	if err := d.mounter.EnsureMounted(ctx); err != nil {
		return nil, err
	}
	return d.scanner.Scan(space.Join(d.space, path), d.browse)
}

// MoveToStorageService copies the tree under src into dst.
func (d *Driver) MoveToStorageService(ctx context.Context, src, dst string, dstSpace space.Space) error {
	if err := d.mounter.EnsureMounted(ctx); err != nil {
		return err
	}
	return d.engine.MoveTo(ctx, space.Join(d.space, src), driver.StagingDestination(dst, dstSpace), dstSpace)
}

// MoveFromStorageService copies the staging tree src into dst inside the
// export.
func (d *Driver) MoveFromStorageService(ctx context.Context, src, dst string) error {
	if err := d.mounter.EnsureMounted(ctx); err != nil {
		return err
	}
	return d.engine.MoveFrom(ctx, driver.Resolve(d.space.StagingPath(), src), space.Join(d.space, dst), d.space)
}

// EnsureMounted and Unmount expose the mount lifecycle of the export.
func (d *Driver) EnsureMounted(ctx context.Context) error { return d.mounter.EnsureMounted(ctx) }
func (d *Driver) Unmount(ctx context.Context) error       { return d.mounter.Unmount(ctx) }

// Validate requires a mount point and, unless the export is mounted by hand,
// the server and export path.
func (d *Driver) Validate() error {
	if err := driver.ValidatePath(d.space); err != nil {
		return err
	}
	switch d.opts.Version {
	case "nfs", "nfs4":
	default:
		return &space.ConfigurationError{Field: "version", Reason: "must be nfs or nfs4"}
	}
	if d.opts.ManuallyMounted {
		return nil
	}
	if d.opts.RemoteName == "" {
		return &space.ConfigurationError{Field: "remote_name", Reason: "required unless manually_mounted is set"}
	}
	if !strings.HasPrefix(d.opts.RemotePath, "/") {
		return &space.ConfigurationError{Field: "remote_path", Reason: "must be an absolute export path"}
	}
	return nil
}
