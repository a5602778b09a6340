// Package history keeps an ordered list of strings, such as search or command
// history, under a single key of a store.Store.
//
// Every operation reads the record from the store, so handles never hold a
// copy between calls. Insert and Remove are read-modify-write cycles without
// any locking: two concurrent mutations of the same key may lose one of the
// updates. Callers that need strict ordering either wait for each call before
// issuing the next or build their handles with Serialized.
//
// Example usage:
//
//	h := history.New(s, "searches")
//	if err := h.Insert(ctx, "golang generics"); err != nil {
//		return err
//	}
//	entries, err := h.Fetch(ctx)
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prologic/historykv/store"
)

// DefaultKey is the key used by the default handle and by New when no key is given.
const DefaultKey = "history"

// Storage is a handle on one history record.
type Storage struct {
	store store.Store
	key   string
	lock  *keyLocker
}

// Option configures a Storage.
type Option func(*Storage)

// New binds a handle to key in s. An empty key means DefaultKey. No I/O is performed.
func New(s store.Store, key string, opts ...Option) *Storage {
	if key == "" {
		key = DefaultKey
	}
	h := &Storage{store: s, key: key}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Key returns the key the handle is bound to.
func (h *Storage) Key() string {
	return h.key
}

// Insert appends value to the end of the record.
func (h *Storage) Insert(ctx context.Context, value string) error {
	unlock, err := h.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := h.read(ctx)
	if err != nil {
		return err
	}
	return h.write(ctx, append(entries, value))
}

// Fetch returns the entries in insertion order. A missing record yields an empty, non-nil slice.
func (h *Storage) Fetch(ctx context.Context) ([]string, error) {
	return h.read(ctx)
}

// Remove deletes the entry at index. An index outside the record is ignored and nothing is written.
func (h *Storage) Remove(ctx context.Context, index int) error {
	unlock, err := h.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := h.read(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(entries) {
		return nil
	}
	return h.write(ctx, append(entries[:index], entries[index+1:]...))
}

// Clear deletes the record's key from the store.
func (h *Storage) Clear(ctx context.Context) error {
	unlock, err := h.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	return h.store.DeleteKey(ctx, h.key)
}

func (h *Storage) read(ctx context.Context) ([]string, error) {
	data, err := h.store.GetValue(ctx, h.key)
	if err != nil {
		return nil, err
	}
	entries := []string{}
	if data == nil {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error decoding history %q: %w", h.key, err)
	}
	if entries == nil {
		// a stored JSON null
		entries = []string{}
	}
	return entries, nil
}

func (h *Storage) write(ctx context.Context, entries []string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("error encoding history %q: %w", h.key, err)
	}
	return h.store.PutValue(ctx, h.key, data)
}

func (h *Storage) acquire() (func(), error) {
	if h.lock == nil {
		return func() {}, nil
	}
	return h.lock.acquire(h.key)
}
