package onedata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/marmos91/stowage/pkg/driver"
	"github.com/marmos91/stowage/pkg/mount"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a mount.Executor reporting a live mount listing the space.
type recorder struct {
	mu      sync.Mutex
	listing string
	calls   [][]string
}

func (r *recorder) Run(_ context.Context, argv []string) (mount.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, argv)
	if argv[0] == "ls" {
		return mount.Result{Output: r.listing}, nil
	}
	return mount.Result{}, nil
}

func (r *recorder) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, c := range r.calls {
		names = append(names, c[0])
	}
	return names
}

func testOptions() Options {
	return Options{
		OneproviderHost: "provider.example.org",
		AccessToken:     "secret-token",
		SpaceName:       "archive",
		SpaceGUID:       "guid-1",
	}
}

func newDriver(t *testing.T, opts Options, exec mount.Executor) (*Driver, string) {
	t.Helper()
	root := t.TempDir()
	sp := space.NewLocal(root, filepath.Join(t.TempDir(), "staging"))
	d := New(sp, opts, driver.Settings{},
		WithMountOptions(mount.WithExecutor(exec), mount.WithMountedCheck(nil)),
		WithAccessCheck(func(string) bool { return true }),
	)
	return d, root
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestMountCommand(t *testing.T) {
	opts := testOptions()
	opts.OneclientCLI = "--io-trace-log  -v 2"
	opts.ArchivematicaView = true

	cmd := mountCommand(opts, "/mnt/onedata")
	assert.Equal(t, []string{
		"oneclient", "--enable-archivematica", "--force-proxy-io",
		"-o", "allow_other",
		"-t", "secret-token",
		"-H", "provider.example.org",
		"--space", "archive",
		"--io-trace-log", "-v", "2",
		"/mnt/onedata",
	}, cmd)

	opts.ArchivematicaView = false
	opts.OneclientCLI = ""
	cmd = mountCommand(opts, "/mnt/onedata")
	assert.Equal(t, "--force-proxy-io", cmd[1])
	assert.Equal(t, "/mnt/onedata", cmd[len(cmd)-1])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		opts   func(*Options)
		field  string
		wantOK bool
	}{
		{name: "valid", path: "/mnt/onedata", wantOK: true},
		{name: "empty mount point", path: "", field: "path"},
		{name: "reserved mount point", path: "/tmp/oneclient", field: "path"},
		{name: "reserved mount point uncleaned", path: "/tmp/oneclient/", field: "path"},
		{name: "reserved even when manual", path: "/tmp/oneclient", opts: func(o *Options) { o.ManuallyMounted = true }, field: "path"},
		{name: "missing token", path: "/mnt/onedata", opts: func(o *Options) { o.AccessToken = "" }, field: "access_token"},
		{name: "missing host", path: "/mnt/onedata", opts: func(o *Options) { o.OneproviderHost = "" }, field: "oneprovider_host"},
		{name: "manual needs no credentials", path: "/mnt/onedata", opts: func(o *Options) { *o = Options{ManuallyMounted: true} }, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			d := New(space.NewLocal(tt.path, ""), opts, driver.Settings{})
			err := d.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
				return
			}
			var cerr *space.ConfigurationError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.field, cerr.Field)
			assert.True(t, errors.Is(err, space.ErrConfiguration))
		})
	}
}

func TestBrowseMountsFirst(t *testing.T) {
	exec := &recorder{listing: ""}
	d, root := newDriver(t, testOptions(), exec)
	write(t, filepath.Join(root, "archive", "file.txt"), "12345")
	exec.listing = "archive\n"

	tree, err := d.Browse(context.Background(), "archive")
	require.NoError(t, err)
	assert.Equal(t, []string{"file.txt"}, tree.Entries)
	assert.Equal(t, int64(5), *tree.Properties["file.txt"].Size)
	assert.Equal(t, []string{"ls"}, exec.commands())
}

func TestBrowseArchivematicaView(t *testing.T) {
	exec := &recorder{listing: "archive"}
	opts := testOptions()
	opts.ArchivematicaView = true
	d, root := newDriver(t, opts, exec)
	write(t, filepath.Join(root, "transfer"+ArchivematicaSuffix, "metadata.json"), "{}")

	tree, err := d.Browse(context.Background(), "transfer")
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata.json"}, tree.Entries)
}

func TestManuallyMountedNeverMounts(t *testing.T) {
	exec := &recorder{}
	opts := testOptions()
	opts.ManuallyMounted = true
	d, root := newDriver(t, opts, exec)
	write(t, filepath.Join(root, "transfer", "a.txt"), "a")

	ctx := context.Background()
	_, err := d.Browse(ctx, "")
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, d.MoveToStorageService(ctx, filepath.Join(root, "transfer"), dst, nil))

	staged := filepath.Join(d.Space().StagingPath(), "incoming")
	write(t, filepath.Join(staged, "b.txt"), "b")
	require.NoError(t, d.MoveFromStorageService(ctx, "incoming", "stored"))

	require.NoError(t, d.Unmount(ctx))
	assert.Empty(t, exec.calls)
}

func TestMoveToStorageServiceLinks(t *testing.T) {
	exec := &recorder{listing: "archive"}
	d, root := newDriver(t, testOptions(), exec)
	write(t, filepath.Join(root, "transfer", "objects", "a.txt"), "a")

	staging := space.NewLocal(t.TempDir(), t.TempDir())
	require.NoError(t, d.MoveToStorageService(context.Background(), "transfer", "pkg", staging))

	link := filepath.Join(staging.StagingPath(), "pkg", "objects", "a.txt")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "transfer", "objects", "a.txt"), target)
}

func TestMoveFailsWhenMountFails(t *testing.T) {
	exec := &recorder{listing: "other-space"}
	d, _ := newDriver(t, testOptions(), exec)

	err := d.MoveFromStorageService(context.Background(), "x", "y")
	assert.True(t, errors.Is(err, space.ErrMount))
	assert.Equal(t, []string{"ls", "fusermount", "oneclient", "ls"}, exec.commands())
}
