package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipforge/walletauth/ports"
)

func TestFileStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.age")
	s := NewFileStore(path, "correct horse battery staple")

	t.Run("get of absent key", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("round-trip survives a new store instance", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "session:jwt", "t1"))
		require.NoError(t, s.Set(ctx, "session:wallet-address", "0x8ba1f109551bD432803012645Ac136ddd64DBA72"))

		reopened := NewFileStore(path, "correct horse battery staple")
		value, err := reopened.Get(ctx, "session:jwt")
		require.NoError(t, err)
		assert.Equal(t, "t1", value)
	})

	t.Run("file contents are not plaintext", func(t *testing.T) {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "t1")
		assert.NotContains(t, string(raw), "session:jwt")
	})

	t.Run("wrong passphrase fails", func(t *testing.T) {
		wrong := NewFileStore(path, "wrong passphrase")
		_, err := wrong.Get(ctx, "session:jwt")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "session:jwt"))

		_, err := s.Get(ctx, "session:jwt")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("delete of absent key is not an error", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, "never-existed"))
	})
}
