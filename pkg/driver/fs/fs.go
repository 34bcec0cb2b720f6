// Package fs implements the space driver for a plain local filesystem path.
package fs

import (
	"context"
	"path/filepath"

	"github.com/marmos91/stowage/pkg/driver"
	"github.com/marmos91/stowage/pkg/replica"
	"github.com/marmos91/stowage/pkg/scan"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/marmos91/stowage/pkg/transfer"
)

// Driver browses and copies files of a local directory. It has no mount to
// manage and no replicas to filter.
type Driver struct {
	space   space.Space
	scanner *scan.Scanner
	engine  *transfer.Engine
	browse  scan.Options
}

// New creates a filesystem driver for sp.
func New(sp space.Space, settings driver.Settings, opts ...scan.Option) *Driver {
	kind := string(space.KindFilesystem)
	scanOpts := append([]scan.Option{
		scan.WithReplicaChecker(replica.AllReplicas{}),
		scan.WithCountCap(settings.CountCap),
		scan.WithMetrics(settings.ScanMetrics, kind),
	}, opts...)

	return &Driver{
		space:   sp,
		scanner: scan.New(scanOpts...),
		engine:  transfer.New(transfer.Copy, transfer.WithMetrics(settings.TransferMetrics, kind)),
		browse: scan.Options{
			CountingDisabled: settings.CountingDisabled,
			IncludeHidden:    settings.IncludeHidden,
		},
	}
}

func (d *Driver) Kind() space.Kind   { return space.KindFilesystem }
func (d *Driver) Space() space.Space { return d.space }

// Browse lists path below the space root.
func (d *Driver) Browse(_ context.Context, path string) (*space.DirectoryTree, error) {
	return d.scanner.Scan(space.Join(d.space, path), d.browse)
}

// MoveToStorageService copies the tree under src into dst.
func (d *Driver) MoveToStorageService(ctx context.Context, src, dst string, dstSpace space.Space) error {
	return d.engine.MoveTo(ctx, space.Join(d.space, src), driver.StagingDestination(dst, dstSpace), dstSpace)
}

// MoveFromStorageService copies the staging tree src into dst inside the
// space.
func (d *Driver) MoveFromStorageService(ctx context.Context, src, dst string) error {
	return d.engine.MoveFrom(ctx, driver.Resolve(d.space.StagingPath(), src), space.Join(d.space, dst), d.space)
}

// Validate requires an absolute space path.
func (d *Driver) Validate() error {
	if err := driver.ValidatePath(d.space); err != nil {
		return err
	}
	if !filepath.IsAbs(d.space.Path()) {
		return &space.ConfigurationError{Field: "path", Reason: "must be absolute"}
	}
	return nil
}
