package memory

import (
	"context"
	"testing"

	"github.com/marmos91/stowage/pkg/registry"
	"github.com/marmos91/stowage/pkg/registry/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, New())
}

func TestStoreCopiesOptions(t *testing.T) {
	s := New()
	opts := map[string]any{"bucket": "a"}
	require.NoError(t, s.Put(context.Background(), registry.Record{Name: "s3", Options: opts}))
	opts["bucket"] = "b"

	rec, err := s.Get(context.Background(), "s3")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Options["bucket"])
}
