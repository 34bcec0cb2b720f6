package space

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Standard Space Errors
// ============================================================================

// These errors give every driver a common vocabulary for failure conditions.
// Callers (the web layer, the CLI) check them with errors.Is / errors.As and
// map them to their own status codes.
//
// Usage Pattern:
//
//	tree, err := driver.Browse(ctx, path)
//	if err != nil {
//	    if errors.Is(err, space.ErrNotFound) {
//	        return http.StatusNotFound
//	    }
//	    if errors.Is(err, space.ErrMount) {
//	        return http.StatusServiceUnavailable
//	    }
//	    return http.StatusInternalServerError
//	}

var (
	// ErrNotFound indicates the requested path is absent or is not a readable
	// directory.
	//
	// Returned, never retried.
	ErrNotFound = errors.New("path not found")

	// ErrMount indicates that a mount, unmount or liveness probe failed and
	// the backend could not be brought to the Mounted state.
	//
	// Fatal to the enclosing operation. Concrete errors are *MountError.
	ErrMount = errors.New("mount failed")

	// ErrConfiguration indicates an invalid backend configuration.
	//
	// Raised at save time, never at runtime. Concrete errors are
	// *ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrTransfer indicates that at least one file of a transfer failed.
	//
	// The transfer still completed for every other file. Concrete errors are
	// *TransferError.
	ErrTransfer = errors.New("transfer incomplete")

	// ErrUnsupported indicates the driver does not implement the operation.
	ErrUnsupported = errors.New("operation not supported")
)

// MountError describes a failed step of the mount lifecycle.
type MountError struct {
	// Op is the lifecycle step that failed: "probe", "mount", "unmount", "mkdir".
	Op string

	// MountPoint is the local (or in-pod) mount point path.
	MountPoint string

	// Reason is a human readable description, usually the command output.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *MountError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.MountPoint)
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *MountError) Unwrap() error { return e.Err }

// Is reports ErrMount so that callers can match on the sentinel.
func (e *MountError) Is(target error) bool { return target == ErrMount }

// ConfigurationError describes a backend configuration rejected at save time.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// FileFailure records a single file (or directory) that could not be
// transferred.
type FileFailure struct {
	// Path is relative to the transfer source.
	Path string
	Err  error
}

// TransferError aggregates per-file failures of a transfer.
//
// A transfer that returns a *TransferError is a partial success: every path
// not listed in Failures was transferred.
type TransferError struct {
	Source      string
	Destination string
	Failures    []FileFailure
}

func (e *TransferError) Error() string {
	paths := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		paths = append(paths, f.Path)
	}
	return fmt.Sprintf("transfer %s -> %s: %d file(s) failed: %s",
		e.Source, e.Destination, len(e.Failures), strings.Join(paths, ", "))
}

func (e *TransferError) Is(target error) bool { return target == ErrTransfer }

// Add records a failure for the given relative path.
func (e *TransferError) Add(path string, err error) {
	e.Failures = append(e.Failures, FileFailure{Path: path, Err: err})
}

// ErrOrNil returns the error itself when failures were recorded, nil
// otherwise. Keeps call sites free of typed-nil interface values.
func (e *TransferError) ErrOrNil() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e
}

// FailedPaths returns the relative paths of all recorded failures.
func (e *TransferError) FailedPaths() []string {
	paths := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		paths = append(paths, f.Path)
	}
	return paths
}
