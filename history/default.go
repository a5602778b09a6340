package history

import (
	"context"
	"sync/atomic"

	"github.com/prologic/historykv/store"
)

var std atomic.Pointer[Storage]

func init() {
	std.Store(New(store.NewMemoryStore(), DefaultKey))
}

// Default returns the process-wide handle bound to DefaultKey. Until
// SetDefaultStore is called it is backed by an in-process memory store.
func Default() *Storage {
	return std.Load()
}

// SetDefaultStore rebinds the default handle to s. The key stays DefaultKey.
func SetDefaultStore(s store.Store) {
	std.Store(New(s, DefaultKey))
}

// Insert appends value to the default record.
func Insert(ctx context.Context, value string) error {
	return Default().Insert(ctx, value)
}

// Fetch returns the default record.
func Fetch(ctx context.Context) ([]string, error) {
	return Default().Fetch(ctx)
}

// Remove deletes the entry at index from the default record.
func Remove(ctx context.Context, index int) error {
	return Default().Remove(ctx, index)
}

// Clear deletes the default record.
func Clear(ctx context.Context) error {
	return Default().Clear(ctx)
}
