package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipforge/walletauth/ports"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("get of absent key", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "session:jwt", "t1"))

		value, err := s.Get(ctx, "session:jwt")
		require.NoError(t, err)
		assert.Equal(t, "t1", value)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "session:jwt", "t2"))

		value, err := s.Get(ctx, "session:jwt")
		require.NoError(t, err)
		assert.Equal(t, "t2", value)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "session:jwt"))

		_, err := s.Get(ctx, "session:jwt")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("delete of absent key is not an error", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, "missing"))
	})
}
