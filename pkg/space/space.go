// Package space defines the storage-space abstraction shared by every
// backend driver: the Space a driver is attached to, the Driver capability
// set, the DirectoryTree browse result and the error taxonomy.
//
// Concrete drivers live under pkg/driver/*. A driver is selected at runtime
// from the space's Kind (see pkg/config factories) and is only ever reached
// through the Driver interface.
package space

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Kind identifies a storage backend implementation.
type Kind string

const (
	KindFilesystem Kind = "filesystem"
	KindNFS        Kind = "nfs"
	KindOnedata    Kind = "onedata"
	KindS3         Kind = "s3"
)

// Kinds lists every supported backend kind.
func Kinds() []Kind {
	return []Kind{KindFilesystem, KindNFS, KindOnedata, KindS3}
}

// Space is the part of a storage space a driver needs: its local path and
// the ability to materialize local directories.
type Space interface {
	// Path is the local path of the space. For mounted backends it is the
	// mount point.
	Path() string

	// StagingPath is the local directory used as transfer intermediary.
	StagingPath() string

	// CreateLocalDirectory makes sure the directory for path exists.
	CreateLocalDirectory(path string) error
}

// Driver is the capability set every backend kind exposes.
//
// Implementations expect one call in flight per instance; mount state is
// re-derived at the start of every Browse/Move call.
type Driver interface {
	// Kind reports the backend kind of the driver.
	Kind() Kind

	// Space returns the space the driver is attached to.
	Space() Space

	// Browse lists the direct children of path.
	Browse(ctx context.Context, path string) (*DirectoryTree, error)

	// MoveToStorageService mirrors src (inside this space) to dst inside
	// dstSpace.
	MoveToStorageService(ctx context.Context, src, dst string, dstSpace Space) error

	// MoveFromStorageService mirrors src (local staging) to dst inside this
	// space.
	MoveFromStorageService(ctx context.Context, src, dst string) error

	// Validate checks the driver configuration before it is persisted.
	// Failures are *ConfigurationError.
	Validate() error
}

// Mounter is implemented by drivers that manage a mount for their space.
type Mounter interface {
	EnsureMounted(ctx context.Context) error
	Unmount(ctx context.Context) error
}

// Local is a Space rooted on the local filesystem.
type Local struct {
	path        string
	stagingPath string

	mu           sync.Mutex
	verified     bool
	lastVerified time.Time
}

// NewLocal creates a local space. The paths are cleaned but not created.
func NewLocal(path, stagingPath string) *Local {
	if path != "" {
		path = filepath.Clean(path)
	}
	if stagingPath != "" {
		stagingPath = filepath.Clean(stagingPath)
	}
	return &Local{path: path, stagingPath: stagingPath}
}

func (s *Local) Path() string        { return s.path }
func (s *Local) StagingPath() string { return s.stagingPath }

// CreateLocalDirectory creates the parent directory of path, or path itself
// when it ends with a separator.
func (s *Local) CreateLocalDirectory(path string) error {
	dir := path
	if !strings.HasSuffix(path, string(filepath.Separator)) {
		dir = filepath.Dir(path)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create local directory %s: %w", dir, err)
	}
	return nil
}

// MarkVerified records a successful verification at the given time.
func (s *Local) MarkVerified(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = true
	s.lastVerified = at
}

// MarkUnverified clears the verification flag, keeping the last timestamp.
func (s *Local) MarkUnverified() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = false
}

// Verified reports whether the space was verified and when.
func (s *Local) Verified() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified, s.lastVerified
}

// Join resolves a browse/move path against the space path. Absolute paths
// are returned cleaned and unchanged.
func Join(s Space, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.Path(), path)
}
