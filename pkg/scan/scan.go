// Package scan produces browse listings of local (or locally mounted)
// directory trees.
//
// A listing covers the direct children of a directory only; browsing is
// on-demand. Directory children can be annotated with an object count, which
// is computed by a recursive descent that stops at a configurable cap so that
// counting never runs unbounded over very large namespaces.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marmos91/stowage/internal/logger"
	"github.com/marmos91/stowage/pkg/metrics"
	"github.com/marmos91/stowage/pkg/replica"
	"github.com/marmos91/stowage/pkg/space"
	"golang.org/x/sys/unix"
)

// DefaultCountCap is the object counting cap used when none is configured.
const DefaultCountCap = 5000

// Options controls a single Scan call.
type Options struct {
	// OnlyLocalReplicas hides files that are not fully replicated locally
	// and disables object counting.
	OnlyLocalReplicas bool

	// CountingDisabled skips object counting for directory children.
	CountingDisabled bool

	// IncludeHidden lists entries whose name starts with a dot.
	IncludeHidden bool
}

// AccessFunc reports whether the caller may read (list) the directory at path.
type AccessFunc func(path string) bool

// Scanner lists directories. The zero value is not usable; use New.
type Scanner struct {
	replicas replica.Checker
	countCap int
	access   AccessFunc
	metrics  metrics.ScanMetrics
	kind     string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithReplicaChecker sets the checker used when OnlyLocalReplicas is set.
func WithReplicaChecker(c replica.Checker) Option {
	return func(s *Scanner) { s.replicas = c }
}

// WithCountCap sets the object counting cap. Values <= 0 select
// DefaultCountCap.
func WithCountCap(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.countCap = n
		}
	}
}

// WithAccessCheck replaces the read permission check for directories.
func WithAccessCheck(f AccessFunc) Option {
	return func(s *Scanner) { s.access = f }
}

// WithMetrics reports scans under the given backend kind label.
func WithMetrics(m metrics.ScanMetrics, kind string) Option {
	return func(s *Scanner) {
		if m != nil {
			s.metrics = m
		}
		s.kind = kind
	}
}

// New returns a Scanner. Without options it checks replicas through extended
// attributes, caps counting at DefaultCountCap and checks read permission
// with access(2).
func New(opts ...Option) *Scanner {
	s := &Scanner{
		replicas: replica.NewXattrChecker(nil),
		countCap: DefaultCountCap,
		access:   readable,
		metrics:  metrics.NewNoopScanMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CountCap returns the configured object counting cap.
func (s *Scanner) CountCap() int { return s.countCap }

func readable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}

// Scan lists the direct children of path sorted case-insensitively by name.
//
// Files carry their byte size. Directories appear in Directories only when
// readable; unreadable directories stay in Entries so they can be shown but
// not descended into, and are never counted. Directory object counts are
// computed only when neither OnlyLocalReplicas nor CountingDisabled is set.
//
// Returns an error wrapping space.ErrNotFound if path is not a readable
// directory.
func (s *Scanner) Scan(path string, opts Options) (*space.DirectoryTree, error) {
	start := time.Now()
	logger.Info("Scanning directory: %s", path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w: %v", path, space.ErrNotFound, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan %s: %w: not a directory", path, space.ErrNotFound)
	}

	children, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w: %v", path, space.ErrNotFound, err)
	}

	sortEntries(children)

	shouldCount := !opts.OnlyLocalReplicas && !opts.CountingDisabled
	tree := space.NewDirectoryTree()

	for _, child := range children {
		name := child.Name()
		if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(path, name)

		if !isDir(full, child) {
			if opts.OnlyLocalReplicas && !s.replicas.IsLocalReplica(full) {
				logger.Debug("%s is not replicated locally", full)
				continue
			}
			tree.Entries = append(tree.Entries, name)
			if size, ok := fileSize(full, child); ok {
				tree.Properties[name] = space.SizeProperties(size)
			}
			continue
		}

		tree.Entries = append(tree.Entries, name)
		if !s.access(full) {
			logger.Debug("%s is not readable, not offering it for browsing", full)
			continue
		}
		tree.Directories = append(tree.Directories, name)
		if shouldCount {
			count := s.CountObjects(full, opts.OnlyLocalReplicas)
			tree.Properties[name] = space.EntryProperties{ObjectCount: &count}
		}
	}

	s.metrics.RecordScan(s.kind, len(tree.Entries), time.Since(start))
	logger.Debug("Returning result for %s: %d entries, %d directories",
		path, len(tree.Entries), len(tree.Directories))

	return tree, nil
}

// CountObjects counts the files below path, applying the replica filter when
// onlyLocalReplicas is set. Counting stops as soon as the cap is reached and
// the result is then reported as capped with Count equal to the cap.
func (s *Scanner) CountObjects(path string, onlyLocalReplicas bool) space.ObjectCount {
	logger.Info("Counting objects at path: %s", path)

	count := 0
	capped := false
	s.ScanDeep(path, onlyLocalReplicas, func(string, fs.DirEntry) bool {
		count++
		if count >= s.countCap {
			capped = true
			return false
		}
		return true
	})

	s.metrics.RecordCount(s.kind, capped)
	return space.ObjectCount{Count: count, Capped: capped}
}

// ScanDeep walks the files below path depth-first and calls visit for each
// one. Directories are descended into, never visited themselves. Symlinks
// are reported as files and not followed.
//
// An error reading any directory stops the descent into that subtree only;
// the walk continues with its siblings. The walk ends early when visit
// returns false, in which case ScanDeep returns false.
func (s *Scanner) ScanDeep(path string, onlyLocalReplicas bool, visit func(path string, entry fs.DirEntry) bool) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		logger.Debug("Stopping descent into %s: %v", path, err)
		return true
	}

	for _, entry := range entries {
		full := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			if !s.ScanDeep(full, onlyLocalReplicas, visit) {
				return false
			}
			continue
		}
		if onlyLocalReplicas && !s.replicas.IsLocalReplica(full) {
			logger.Debug("%s is not replicated locally", full)
			continue
		}
		if !visit(full, entry) {
			return false
		}
	}
	return true
}

// SortNames orders names the way Scan orders entries.
func SortNames(names []string) {
	sort.Slice(names, func(i, j int) bool { return lessName(names[i], names[j]) })
}

func sortEntries(entries []fs.DirEntry) {
	sort.Slice(entries, func(i, j int) bool { return lessName(entries[i].Name(), entries[j].Name()) })
}

// lessName compares case-insensitively, breaking ties by the exact name so
// the order is deterministic.
func lessName(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// isDir follows symlinks, so a link to a directory is browsable.
func isDir(path string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir()
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileSize(path string, entry fs.DirEntry) (int64, bool) {
	var info fs.FileInfo
	var err error
	if entry.Type()&fs.ModeSymlink != 0 {
		info, err = os.Stat(path)
	} else {
		info, err = entry.Info()
	}
	if err != nil {
		logger.Warn("Cannot stat %s: %v", path, err)
		return 0, false
	}
	return info.Size(), true
}
