// Package transfer mirrors directory subtrees between a backend path and a
// local staging tree.
//
// Directory structure is always recreated. Files are either exposed through
// symbolic links pointing at the absolute source path (Link mode, used for
// mounted backends whose files must not be duplicated) or copied byte for
// byte (Copy mode). A failing file never aborts the transfer: failures are
// collected into a *space.TransferError returned once the walk completes.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	cfs "github.com/containerd/continuity/fs"
	"github.com/marmos91/stowage/internal/logger"
	"github.com/marmos91/stowage/pkg/metrics"
	"github.com/marmos91/stowage/pkg/space"
)

// Mode selects how files are materialized at the destination.
type Mode int

const (
	// Link creates a symbolic link to the absolute source file.
	Link Mode = iota

	// Copy copies file contents and permissions.
	Copy
)

func (m Mode) String() string {
	if m == Copy {
		return "copy"
	}
	return "link"
}

// Metric direction labels.
const (
	DirectionToStorageService   = "to_storage_service"
	DirectionFromStorageService = "from_storage_service"
)

// Engine performs transfers in a fixed Mode.
type Engine struct {
	mode    Mode
	kind    string
	metrics metrics.TransferMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics reports transfers under the given backend kind label.
func WithMetrics(m metrics.TransferMetrics, kind string) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
		e.kind = kind
	}
}

// New returns an Engine materializing files in the given mode.
func New(mode Mode, opts ...Option) *Engine {
	e := &Engine{
		mode:    mode,
		metrics: metrics.NewNoopTransferMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the engine's mode.
func (e *Engine) Mode() Mode { return e.mode }

// MoveTo mirrors src into dst inside destSpace.
//
// The destination directory is first created through the space; when that
// leaves no directory at dst a direct creation is attempted, and a failure
// there is only logged: a missing destination surfaces as per-file failures.
func (e *Engine) MoveTo(ctx context.Context, src, dst string, destSpace space.Space) error {
	logger.Info("Syncing files from %s to %s", src, dst)

	if destSpace != nil {
		if err := destSpace.CreateLocalDirectory(dst); err != nil {
			logger.Warn("Creating local directory %s through space failed: %v", dst, err)
		}
	}
	if !isDir(dst) {
		logger.Info("Failed to create local directory %s - retrying", dst)
		if err := os.MkdirAll(dst, 0755); err != nil {
			logger.Error("Failed to create local directory %s: %v", dst, err)
		}
	}

	return e.mirror(ctx, src, dst, DirectionToStorageService)
}

// MoveFrom mirrors src (a staging tree) into dst. The destination is created
// through sp when given; existing destination entries are not checked
// beforehand.
func (e *Engine) MoveFrom(ctx context.Context, src, dst string, sp space.Space) error {
	logger.Info("Moving files from %s to %s", src, dst)

	if sp != nil {
		if err := sp.CreateLocalDirectory(dst); err != nil {
			logger.Warn("Creating local directory %s through space failed: %v", dst, err)
		}
	}

	return e.mirror(ctx, src, dst, DirectionFromStorageService)
}

// Mirror recreates the tree rooted at src under dst. It returns an error
// wrapping space.ErrNotFound when src does not exist, a *space.TransferError
// when some entries failed, and the context error if ctx is cancelled.
func (e *Engine) Mirror(ctx context.Context, src, dst string) error {
	return e.mirror(ctx, src, dst, "")
}

func (e *Engine) mirror(ctx context.Context, src, dst, direction string) error {
	start := time.Now()

	src, err := filepath.Abs(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("transfer %s: %w", src, err)
	}
	dst = filepath.Clean(dst)

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("transfer %s: %w: %v", src, space.ErrNotFound, err)
	}

	terr := &space.TransferError{Source: src, Destination: dst}
	files := 0

	if !info.IsDir() {
		if err := e.place(src, dst); err != nil {
			logger.Error("Failed to transfer %s to %s: %v", src, dst, err)
			terr.Add(filepath.Base(src), err)
		} else {
			files++
		}
		e.record(direction, files, terr, start)
		return terr.ErrOrNil()
	}

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dst, rel)

		if err != nil {
			logger.Error("Failed to traverse %s: %v", path, err)
			terr.Add(rel, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			logger.Debug("Traversing directory %s", path)
			if err := os.MkdirAll(target, 0755); err != nil {
				logger.Error("Failed to create directory %s: %v", target, err)
				terr.Add(rel, err)
				return fs.SkipDir
			}
			return nil
		}

		if err := e.place(path, target); err != nil {
			logger.Error("Failed to %s %s to %s: %v", e.mode, path, target, err)
			terr.Add(rel, err)
			return nil
		}
		files++
		return nil
	})

	e.record(direction, files, terr, start)

	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return fmt.Errorf("transfer %s interrupted after %d file(s): %w", src, files, walkErr)
		}
		return fmt.Errorf("transfer %s: %w", src, walkErr)
	}

	if e.mode == Copy {
		if usage, err := cfs.DiskUsage(ctx, dst); err == nil {
			logger.Info("Copied %d file(s) from %s to %s (%d bytes at destination)", files, src, dst, usage.Size)
		}
	} else {
		logger.Info("Linked %d file(s) from %s into %s", files, src, dst)
	}

	if len(terr.Failures) > 0 {
		logger.Warn("%d of %d file(s) failed to transfer from %s", len(terr.Failures), files+len(terr.Failures), src)
	}
	return terr.ErrOrNil()
}

// place materializes the single file src at target.
func (e *Engine) place(src, target string) error {
	logger.Debug("%s source file %s to %s", e.mode, src, target)

	if e.mode == Link {
		if err := os.Symlink(src, target); err != nil {
			return err
		}
		if fi, err := os.Lstat(target); err != nil || fi.Mode()&fs.ModeSymlink == 0 {
			return fmt.Errorf("%s is not a symlink after linking", target)
		}
		return nil
	}

	return cfs.CopyFile(target, src)
}

func (e *Engine) record(direction string, files int, terr *space.TransferError, start time.Time) {
	if direction == "" {
		return
	}
	e.metrics.RecordTransfer(e.kind, direction, files, len(terr.Failures), time.Since(start))
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
