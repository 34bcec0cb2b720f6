// Package storetest holds the behaviour every registry.Store must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/stowage/pkg/registry"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store through its whole interface. The store must be empty.
func Run(t *testing.T, store registry.Store) {
	t.Helper()
	ctx := context.Background()

	verifiedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := registry.Record{
		Name:         "onedata",
		UUID:         "8a4f2a5e-2d5d-4b9c-9d0b-6c3c6f1d2e7a",
		Type:         space.KindOnedata,
		Path:         "/mnt/onedata",
		StagingPath:  "/var/stowage/staging",
		Options:      map[string]any{"space_name": "archive", "manually_mounted": true},
		Verified:     true,
		LastVerified: verifiedAt,
	}

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "onedata")
		assert.True(t, errors.Is(err, space.ErrNotFound))
	})

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, rec))

		got, err := store.Get(ctx, "onedata")
		require.NoError(t, err)
		assert.Equal(t, rec.UUID, got.UUID)
		assert.Equal(t, rec.Type, got.Type)
		assert.Equal(t, rec.Path, got.Path)
		assert.Equal(t, "archive", got.Options["space_name"])
		assert.Equal(t, true, got.Options["manually_mounted"])
		assert.True(t, got.Verified)
		assert.True(t, verifiedAt.Equal(got.LastVerified))
	})

	t.Run("Overwrite", func(t *testing.T) {
		updated := rec
		updated.Path = "/mnt/other"
		require.NoError(t, store.Put(ctx, updated))

		got, err := store.Get(ctx, "onedata")
		require.NoError(t, err)
		assert.Equal(t, "/mnt/other", got.Path)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, registry.Record{Name: "local", Type: space.KindFilesystem, Path: "/srv"}))

		records, err := store.List(ctx)
		require.NoError(t, err)
		names := make([]string, 0, len(records))
		for _, r := range records {
			names = append(names, r.Name)
		}
		assert.ElementsMatch(t, []string{"onedata", "local"}, names)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "local"))
		_, err := store.Get(ctx, "local")
		assert.True(t, errors.Is(err, space.ErrNotFound))
		assert.True(t, errors.Is(store.Delete(ctx, "local"), space.ErrNotFound))
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Get(cctx, "onedata")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
