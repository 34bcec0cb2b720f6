// Package replica decides whether a file of a replicating filesystem is fully
// materialized on the local provider.
//
// The decision is based on two extended attributes the filesystem client
// exposes on every file. Reading attributes is abstracted behind
// AttributeReader so that tests do not need a real replicating mount.
package replica

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/marmos91/stowage/internal/logger"
	"golang.org/x/sys/unix"
)

const (
	// AttrReplicationProgress reports how much of the file is replicated
	// locally, as a percentage string.
	AttrReplicationProgress = "org.onedata.replication_progress"

	// AttrBlocksCount reports the number of distinct local block ranges.
	AttrBlocksCount = "org.onedata.file_blocks_count"

	// FullReplication is the progress value of a completely replicated file.
	FullReplication = "100%"

	// SingleBlock is the block count of a file stored as one contiguous block.
	SingleBlock = "1"
)

// AttributeReader reads a named extended attribute of a path.
type AttributeReader interface {
	Get(path, name string) ([]byte, error)
}

// Checker reports whether a path is a complete local replica.
type Checker interface {
	IsLocalReplica(path string) bool
}

// XattrChecker implements Checker on top of an AttributeReader.
type XattrChecker struct {
	attrs AttributeReader
}

// NewXattrChecker returns a checker reading attributes through attrs. A nil
// reader selects the system extended attribute reader.
func NewXattrChecker(attrs AttributeReader) *XattrChecker {
	if attrs == nil {
		attrs = SystemAttributes{}
	}
	return &XattrChecker{attrs: attrs}
}

// IsLocalReplica returns true only when the replication progress is complete
// and the file consists of a single block. Any error reading the attributes,
// including attributes not being supported, means "not a local replica".
func (c *XattrChecker) IsLocalReplica(path string) bool {
	progress, err := c.attrs.Get(path, AttrReplicationProgress)
	if err != nil {
		logger.Error("%s does not have replication attributes: %v", path, err)
		return false
	}
	blocks, err := c.attrs.Get(path, AttrBlocksCount)
	if err != nil {
		logger.Error("%s does not have replication attributes: %v", path, err)
		return false
	}

	p, b := normalize(progress), normalize(blocks)
	logger.Debug("%s replication_progress=%s blocks=%s", path, p, b)

	return p == FullReplication && b == SingleBlock
}

func normalize(v []byte) string {
	return string(bytes.TrimSpace(bytes.TrimRight(v, "\x00")))
}

// AllReplicas is a Checker that treats every path as local. Used by backends
// without replication.
type AllReplicas struct{}

func (AllReplicas) IsLocalReplica(string) bool { return true }

// SystemAttributes reads extended attributes with getxattr(2), following
// symlinks.
type SystemAttributes struct{}

// Get returns the value of the named attribute.
func (SystemAttributes) Get(path, name string) ([]byte, error) {
	size, err := getxattr(path, name, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, size)
	for {
		n, err := getxattr(path, name, buf)
		if errors.Is(err, unix.ERANGE) {
			// Attribute grew between the two calls.
			size, err = getxattr(path, name, nil)
			if err != nil {
				return nil, err
			}
			buf = make([]byte, size)
			continue
		}
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
}

func getxattr(path, name string, dest []byte) (int, error) {
	for {
		n, err := unix.Getxattr(path, name, dest)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("getxattr %s %s: %w", path, name, err)
		}
		return n, nil
	}
}
