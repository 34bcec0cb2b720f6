package nfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/stowage/pkg/driver"
	"github.com/marmos91/stowage/pkg/mount"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedExec struct {
	calls [][]string
}

func (s *scriptedExec) Run(_ context.Context, argv []string) (mount.Result, error) {
	s.calls = append(s.calls, argv)
	return mount.Result{}, nil
}

func TestMountCommand(t *testing.T) {
	cmd := mountCommand(Options{RemoteName: "nas", RemotePath: "/export/aips", Version: "nfs4", MountOptions: "ro,soft"}, "/mnt/aips")
	assert.Equal(t, []string{"mount", "-t", "nfs4", "-o", "ro,soft", "nas:/export/aips", "/mnt/aips"}, cmd)

	cmd = mountCommand(Options{RemoteName: "nas", RemotePath: "/export", Version: "nfs"}, "/mnt/aips")
	assert.Equal(t, []string{"mount", "-t", "nfs", "nas:/export", "/mnt/aips"}, cmd)
}

func TestValidate(t *testing.T) {
	valid := Options{RemoteName: "nas", RemotePath: "/export"}
	assert.NoError(t, New(space.NewLocal("/mnt/aips", ""), valid, driver.Settings{}).Validate())

	tests := map[string]struct {
		path string
		opts Options
	}{
		"no path":        {"", valid},
		"bad version":    {"/mnt/aips", Options{RemoteName: "nas", RemotePath: "/export", Version: "nfs3"}},
		"no remote":      {"/mnt/aips", Options{RemotePath: "/export"}},
		"relative paths": {"/mnt/aips", Options{RemoteName: "nas", RemotePath: "export"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := New(space.NewLocal(tt.path, ""), tt.opts, driver.Settings{}).Validate()
			assert.True(t, errors.Is(err, space.ErrConfiguration), "got %v", err)
		})
	}

	assert.NoError(t, New(space.NewLocal("/mnt/aips", ""), Options{ManuallyMounted: true}, driver.Settings{}).Validate())
}

func TestBrowseAfterMount(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), []byte("abc"), 0644))

	// The mount table reports the export as absent until the mount command ran.
	exec := &scriptedExec{}
	mounted := false
	check := func(string) (bool, error) { return mounted, nil }
	d := New(space.NewLocal(root, ""), Options{RemoteName: "nas", RemotePath: "/export"}, driver.Settings{},
		mount.WithExecutor(&mountingExec{scriptedExec: exec, onMount: func() { mounted = true }}),
		mount.WithMountedCheck(check))

	tree, err := d.Browse(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tree.Entries)

	var names []string
	for _, c := range exec.calls {
		names = append(names, c[0])
	}
	assert.Equal(t, []string{"umount", "mount", "ls"}, names)
}

type mountingExec struct {
	*scriptedExec
	onMount func()
}

func (m *mountingExec) Run(ctx context.Context, argv []string) (mount.Result, error) {
	if argv[0] == "mount" {
		m.onMount()
	}
	return m.scriptedExec.Run(ctx, argv)
}
