package space

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DirectoryTree is the one-level listing returned by Driver.Browse.
//
// Entries holds every visible child name sorted case-insensitively.
// Directories is the subset of Entries the caller may descend into.
// Properties carries per-entry annotations: size for files, object count for
// directories (absent when counting is disabled or replica filtering is on).
type DirectoryTree struct {
	Directories []string                   `json:"directories"`
	Entries     []string                   `json:"entries"`
	Properties  map[string]EntryProperties `json:"properties"`
}

// NewDirectoryTree returns an empty tree with non-nil collections, so that it
// always encodes as lists and an object rather than null.
func NewDirectoryTree() *DirectoryTree {
	return &DirectoryTree{
		Directories: []string{},
		Entries:     []string{},
		Properties:  make(map[string]EntryProperties),
	}
}

// EntryProperties annotates a single entry of a DirectoryTree.
type EntryProperties struct {
	// Size in bytes. Set for files only.
	Size *int64 `json:"size,omitempty"`

	// ObjectCount is the (possibly capped) number of objects below a
	// directory. Nil when counting was skipped.
	ObjectCount *ObjectCount `json:"object count,omitempty"`
}

// SizeProperties returns properties for a file of the given size.
func SizeProperties(size int64) EntryProperties {
	return EntryProperties{Size: &size}
}

// ObjectCount is the result of counting objects below a directory.
//
// When the count reached the configured cap, Capped is set and Count equals
// the cap; the value renders as "<cap>+" instead of a number.
type ObjectCount struct {
	Count  int
	Capped bool
}

func (c ObjectCount) String() string {
	if c.Capped {
		return fmt.Sprintf("%d+", c.Count)
	}
	return strconv.Itoa(c.Count)
}

// MarshalJSON encodes exact counts as numbers and capped counts as the
// "<cap>+" sentinel string.
func (c ObjectCount) MarshalJSON() ([]byte, error) {
	if c.Capped {
		return json.Marshal(c.String())
	}
	return json.Marshal(c.Count)
}

// UnmarshalJSON accepts both encodings produced by MarshalJSON.
func (c *ObjectCount) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = ObjectCount{Count: n}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("object count: %w", err)
	}
	capped := strings.HasSuffix(s, "+")
	n, err := strconv.Atoi(strings.TrimSuffix(s, "+"))
	if err != nil {
		return fmt.Errorf("object count %q: %w", s, err)
	}
	*c = ObjectCount{Count: n, Capped: capped}
	return nil
}
