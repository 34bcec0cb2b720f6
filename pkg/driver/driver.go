// Package driver holds what every space driver shares: the runtime settings
// handed to drivers by the configuration layer and path resolution helpers.
//
// Concrete drivers live in the subpackages, one per space.Kind.
package driver

import (
	"path/filepath"
	"time"

	"github.com/marmos91/stowage/pkg/metrics"
	"github.com/marmos91/stowage/pkg/space"
)

// Settings are the deployment-wide knobs applied to every driver.
type Settings struct {
	// CountCap bounds object counting during browse. <= 0 selects the
	// scanner default.
	CountCap int

	// CountingDisabled skips object counting entirely.
	CountingDisabled bool

	// IncludeHidden lists dot entries when browsing.
	IncludeHidden bool

	ProbeTimeout   time.Duration
	CommandTimeout time.Duration
	ExecTimeout    time.Duration
	ExecRetryMax   int

	MountMetrics    metrics.MountMetrics
	TransferMetrics metrics.TransferMetrics
	ScanMetrics     metrics.ScanMetrics
	S3Metrics       metrics.S3Metrics
}

// Resolve returns path unchanged when absolute, otherwise joined onto base.
// An empty base leaves relative paths untouched.
func Resolve(base, path string) string {
	if filepath.IsAbs(path) || base == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// StagingDestination resolves a move-to destination. Relative destinations
// land in the staging path of the destination space.
func StagingDestination(dst string, dstSpace space.Space) string {
	if dstSpace == nil {
		return filepath.Clean(dst)
	}
	return Resolve(dstSpace.StagingPath(), dst)
}

// ValidatePath checks the common rule that a space path must be set.
func ValidatePath(sp space.Space) error {
	if sp == nil || sp.Path() == "" {
		return &space.ConfigurationError{Field: "path", Reason: "must not be empty"}
	}
	return nil
}
