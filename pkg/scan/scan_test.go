package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/marmos91/stowage/pkg/space"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pathSet is a replica.Checker treating only the listed base names as local.
type pathSet map[string]bool

func (p pathSet) IsLocalReplica(path string) bool {
	return p[filepath.Base(path)]
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

// denyNamed returns an access check refusing directories with the given base name.
// Tests usually run as root, where mode bits alone would not deny access.
func denyNamed(names ...string) AccessFunc {
	return func(path string) bool {
		for _, n := range names {
			if filepath.Base(path) == n {
				return false
			}
		}
		return true
	}
}

func TestScanUnreadableDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), 10)
	writeFile(t, filepath.Join(root, "B.txt"), 20)
	require.NoError(t, os.Mkdir(filepath.Join(root, "priv"), 0000))

	s := New(WithAccessCheck(denyNamed("priv")))
	tree, err := s.Scan(root, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "B.txt", "priv"}, tree.Entries)
	assert.Empty(t, tree.Directories)
	require.NotNil(t, tree.Properties["a.txt"].Size)
	assert.Equal(t, int64(10), *tree.Properties["a.txt"].Size)
	assert.Equal(t, int64(20), *tree.Properties["B.txt"].Size)

	_, counted := tree.Properties["priv"]
	assert.False(t, counted, "unreadable directories are never counted")
}

func TestScanDirectoriesAreSortedSubsetOfEntries(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"zeta", "Alpha", "beta", "Gamma"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0755))
	}
	writeFile(t, filepath.Join(root, "delta.bin"), 1)
	writeFile(t, filepath.Join(root, "Epsilon.bin"), 1)

	tree, err := New().Scan(root, Options{CountingDisabled: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"Alpha", "beta", "delta.bin", "Epsilon.bin", "Gamma", "zeta"}, tree.Entries)
	assert.Equal(t, []string{"Alpha", "beta", "Gamma", "zeta"}, tree.Directories)

	entries := make(map[string]bool)
	for _, e := range tree.Entries {
		entries[e] = true
	}
	for _, d := range tree.Directories {
		assert.True(t, entries[d], "directory %s missing from entries", d)
	}
	assert.True(t, sort.SliceIsSorted(tree.Entries, func(i, j int) bool {
		return strings.ToLower(tree.Entries[i]) < strings.ToLower(tree.Entries[j])
	}))
}

func TestScanObjectCounts(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(root, "small", fmt.Sprintf("f%d", i)), 1)
	}
	for i := 0; i < 12; i++ {
		writeFile(t, filepath.Join(root, "big", "nested", fmt.Sprintf("f%d", i)), 1)
	}

	s := New(WithCountCap(10))
	tree, err := s.Scan(root, Options{})
	require.NoError(t, err)

	small := tree.Properties["small"].ObjectCount
	require.NotNil(t, small)
	assert.Equal(t, space.ObjectCount{Count: 3}, *small)

	big := tree.Properties["big"].ObjectCount
	require.NotNil(t, big)
	assert.Equal(t, "10+", big.String())
}

func TestScanCountingDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dir", "f"), 1)

	tree, err := New().Scan(root, Options{CountingDisabled: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"dir"}, tree.Directories)
	assert.Nil(t, tree.Properties["dir"].ObjectCount)
}

func TestScanOnlyLocalReplicas(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "local.txt"), 4)
	writeFile(t, filepath.Join(root, "remote.txt"), 4)
	writeFile(t, filepath.Join(root, "dir", "local.txt"), 4)

	s := New(WithReplicaChecker(pathSet{"local.txt": true}))
	tree, err := s.Scan(root, Options{OnlyLocalReplicas: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"dir", "local.txt"}, tree.Entries)
	assert.Equal(t, []string{"dir"}, tree.Directories)
	for _, d := range tree.Directories {
		assert.Nil(t, tree.Properties[d].ObjectCount, "counting is skipped for %s", d)
	}
}

func TestScanHiddenEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".hidden"), 1)
	writeFile(t, filepath.Join(root, "shown"), 1)

	tree, err := New().Scan(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"shown"}, tree.Entries)

	tree, err = New().Scan(root, Options{IncludeHidden: true})
	require.NoError(t, err)
	assert.Equal(t, []string{".hidden", "shown"}, tree.Entries)
}

func TestScanNotFound(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	writeFile(t, file, 1)

	_, err := New().Scan(filepath.Join(root, "missing"), Options{})
	assert.True(t, errors.Is(err, space.ErrNotFound))

	_, err = New().Scan(file, Options{})
	assert.True(t, errors.Is(err, space.ErrNotFound))
}

func TestCountObjectsNeverExceedsCap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 25; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("d%d", i%3), fmt.Sprintf("f%d", i)), 1)
	}

	tests := []struct {
		cap  int
		want string
	}{
		{cap: 5, want: "5+"},
		{cap: 25, want: "25+"},
		{cap: 26, want: "25"},
		{cap: 100, want: "25"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("cap=%d", tt.cap), func(t *testing.T) {
			count := New(WithCountCap(tt.cap)).CountObjects(root, false)
			assert.LessOrEqual(t, count.Count, tt.cap)
			assert.Equal(t, tt.want, count.String())
		})
	}
}

func TestCountObjectsReplicaFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "keep"), 1)
	writeFile(t, filepath.Join(root, "a", "drop"), 1)
	writeFile(t, filepath.Join(root, "b", "keep"), 1)

	s := New(WithReplicaChecker(pathSet{"keep": true}))
	assert.Equal(t, space.ObjectCount{Count: 2}, s.CountObjects(root, true))
	assert.Equal(t, space.ObjectCount{Count: 3}, s.CountObjects(root, false))
}

func TestWithCountCapDefault(t *testing.T) {
	assert.Equal(t, DefaultCountCap, New(WithCountCap(0)).CountCap())
	assert.Equal(t, DefaultCountCap, New(WithCountCap(-3)).CountCap())
	assert.Equal(t, 25000, New(WithCountCap(25000)).CountCap())
}

func TestScanDeepStopsAtUnreadableSubtree(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "open", "f1"), 1)
	writeFile(t, filepath.Join(root, "closed", "f2"), 1)
	require.NoError(t, os.Chmod(filepath.Join(root, "closed"), 0000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "closed"), 0755) })

	var seen []string
	done := New().ScanDeep(root, false, func(path string, _ fs.DirEntry) bool {
		seen = append(seen, filepath.Base(path))
		return true
	})

	assert.True(t, done)
	assert.Equal(t, []string{"f1"}, seen)
}

func TestScanDeepEarlyStop(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("f%d", i)), 1)
	}

	visited := 0
	done := New().ScanDeep(root, false, func(string, fs.DirEntry) bool {
		visited++
		return visited < 2
	})

	assert.False(t, done)
	assert.Equal(t, 2, visited)
}

func TestSortNames(t *testing.T) {
	names := []string{"priv", "B.txt", "a.txt", "b.txt"}
	SortNames(names)
	assert.Equal(t, []string{"a.txt", "B.txt", "b.txt", "priv"}, names)
}
