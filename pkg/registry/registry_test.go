package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/stowage/pkg/registry"
	"github.com/marmos91/stowage/pkg/registry/memory"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDriver validates like the distributed filesystem driver and fails
// browsing when told to.
type stubDriver struct {
	sp        *space.Local
	browseErr error
}

func (d *stubDriver) Kind() space.Kind   { return space.KindOnedata }
func (d *stubDriver) Space() space.Space { return d.sp }
func (d *stubDriver) Browse(context.Context, string) (*space.DirectoryTree, error) {
	if d.browseErr != nil {
		return nil, d.browseErr
	}
	return space.NewDirectoryTree(), nil
}
func (d *stubDriver) MoveToStorageService(context.Context, string, string, space.Space) error {
	return nil
}
func (d *stubDriver) MoveFromStorageService(context.Context, string, string) error { return nil }
func (d *stubDriver) Validate() error {
	if d.sp.Path() == "" {
		return &space.ConfigurationError{Field: "path", Reason: "must not be empty"}
	}
	if d.sp.Path() == "/tmp/oneclient" {
		return &space.ConfigurationError{Field: "path", Reason: "reserved"}
	}
	return nil
}

type factory struct {
	built     int
	browseErr error
	fail      error
}

func (f *factory) build(_ context.Context, rec registry.Record) (space.Driver, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.built++
	return &stubDriver{sp: space.NewLocal(rec.Path, rec.StagingPath), browseErr: f.browseErr}, nil
}

func TestSaveAssignsUUIDAndPersists(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	f := &factory{}
	reg := registry.New(store, f.build)

	rec, err := reg.Save(ctx, registry.Record{Name: "onedata", Type: space.KindOnedata, Path: "/mnt/onedata"})
	require.NoError(t, err)
	_, err = uuid.Parse(rec.UUID)
	assert.NoError(t, err)

	stored, err := store.Get(ctx, "onedata")
	require.NoError(t, err)
	assert.Equal(t, rec.UUID, stored.UUID)

	d, err := reg.Get("onedata")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/onedata", d.Space().Path())
	assert.Equal(t, []string{"onedata"}, reg.Names())
}

func TestSaveRejectsInvalidConfiguration(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	reg := registry.New(store, (&factory{}).build)

	for _, path := range []string{"", "/tmp/oneclient"} {
		_, err := reg.Save(ctx, registry.Record{Name: "bad", Type: space.KindOnedata, Path: path})
		require.Error(t, err)

		var cerr *space.ConfigurationError
		assert.True(t, errors.As(err, &cerr), "path %q: %v", path, err)

		_, err = store.Get(ctx, "bad")
		assert.True(t, errors.Is(err, space.ErrNotFound), "invalid configuration must not be persisted")
	}

	_, err := reg.Save(ctx, registry.Record{Type: space.KindOnedata, Path: "/mnt"})
	assert.True(t, errors.Is(err, space.ErrConfiguration))

	_, err = reg.Save(ctx, registry.Record{Name: "x", UUID: "not-a-uuid", Path: "/mnt"})
	assert.True(t, errors.Is(err, space.ErrConfiguration))
}

func TestSaveFactoryError(t *testing.T) {
	reg := registry.New(memory.New(), (&factory{fail: space.ErrUnsupported}).build)
	_, err := reg.Save(context.Background(), registry.Record{Name: "x", Path: "/mnt"})
	assert.True(t, errors.Is(err, space.ErrUnsupported))
}

func TestOpenLoadsStoredSpaces(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	verifiedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Put(ctx, registry.Record{Name: "a", Path: "/a", Verified: true, LastVerified: verifiedAt}))
	require.NoError(t, store.Put(ctx, registry.Record{Name: "b", Path: "/b"}))

	f := &factory{}
	reg := registry.New(store, f.build)
	require.NoError(t, reg.Open(ctx))

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	d, err := reg.Get("a")
	require.NoError(t, err)
	ok, at := d.Space().(*space.Local).Verified()
	assert.True(t, ok)
	assert.True(t, verifiedAt.Equal(at))
}

func TestGetUnknown(t *testing.T) {
	reg := registry.New(memory.New(), (&factory{}).build)
	_, err := reg.Get("nope")
	assert.True(t, errors.Is(err, space.ErrNotFound))
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	f := &factory{}
	reg := registry.New(store, f.build)

	_, err := reg.Save(ctx, registry.Record{Name: "ok", Path: "/mnt/ok"})
	require.NoError(t, err)
	require.NoError(t, reg.Verify(ctx, "ok"))

	rec, err := reg.Record(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, rec.Verified)
	assert.False(t, rec.LastVerified.IsZero())

	d, _ := reg.Get("ok")
	verified, _ := d.Space().(*space.Local).Verified()
	assert.True(t, verified)

	f.browseErr = &space.MountError{Op: "probe", MountPoint: "/mnt/broken", Reason: "unresponsive"}
	_, err = reg.Save(ctx, registry.Record{Name: "broken", Path: "/mnt/broken"})
	require.NoError(t, err)

	err = reg.Verify(ctx, "broken")
	assert.True(t, errors.Is(err, space.ErrMount))
	rec, err = reg.Record(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, rec.Verified)
}

func TestDeleteAndList(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(memory.New(), (&factory{}).build)

	for _, name := range []string{"zeta", "alpha"} {
		_, err := reg.Save(ctx, registry.Record{Name: name, Path: "/mnt/" + name})
		require.NoError(t, err)
	}

	records, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0].Name)

	require.NoError(t, reg.Delete(ctx, "alpha"))
	assert.Equal(t, []string{"zeta"}, reg.Names())
	assert.True(t, errors.Is(reg.Delete(ctx, "alpha"), space.ErrNotFound))
}
