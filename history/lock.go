package history

import (
	"errors"
	"sync"
	"time"

	golock "github.com/viney-shih/go-lock"
)

// ErrLockTimeout is returned by a Serialized handle that could not lock its key in time.
var ErrLockTimeout = errors.New("timed out locking history key")

// DefaultLockTimeout is used by Serialized when given a zero timeout.
const DefaultLockTimeout = 5 * time.Second

// registry holds one mutex per key and is shared by every Serialized handle
// in the process, so handles on the same key exclude each other even when
// built separately.
var registry = &mutexes{m: map[string]*golock.CASMutex{}}

type mutexes struct {
	mu sync.Mutex
	m  map[string]*golock.CASMutex
}

func (r *mutexes) get(key string) *golock.CASMutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.m[key]
	if !ok {
		m = golock.NewCASMutex()
		r.m[key] = m
	}
	return m
}

// keyLocker locks a handle's key in the registry.
type keyLocker struct {
	timeout time.Duration
}

// Serialized makes the handle lock its key for the duration of each
// operation. Concurrent Insert, Remove and Clear calls through Serialized
// handles of this process then apply one after another instead of racing.
// A timeout of zero means DefaultLockTimeout.
//
// The lock is keyed by record key alone and is only held within this process.
// Handles on the same key in different stores share it, and a mutex is kept
// for every key ever locked, so a process serializing an unbounded number of
// distinct keys grows accordingly.
func Serialized(timeout time.Duration) Option {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return func(h *Storage) {
		h.lock = &keyLocker{timeout: timeout}
	}
}

// acquire locks key and returns the function that releases it.
func (l *keyLocker) acquire(key string) (func(), error) {
	m := registry.get(key)
	if !m.TryLockWithTimeout(l.timeout) {
		return nil, ErrLockTimeout
	}
	return m.Unlock, nil
}
