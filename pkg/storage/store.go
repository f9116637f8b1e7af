// Package storage defines the opaque byte-oriented backend contract that the
// barrier writes ciphertext through. Backends never see plaintext and never
// interpret keys beyond prefix matching for List.
package storage

import "context"

// Backend is the storage contract every persistence implementation must
// satisfy. Keys are arbitrary non-empty strings using "/" as a path
// separator by convention; values are opaque byte slices. Implementations
// must be safe for concurrent use.
type Backend interface {
	// Get returns the value stored at key, or (nil, nil) if key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes value at key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the full keys (not stripped of prefix) of every entry
	// whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}
