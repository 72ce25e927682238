package ports

import (
	"context"
	"errors"
)

// ErrNotFound is returned by SecureStore.Get when the key is absent.
var ErrNotFound = errors.New("key not found")

// SecureStore is durable key/value persistence for session credentials.
// Values survive process restarts.
type SecureStore interface {
	// Set stores a value under a key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Get retrieves a value by key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
