package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownBackend is returned by Open for a backend name it does not know.
var ErrUnknownBackend = errors.New("unknown backend")

// Backend names accepted by Open
const (
	BackendBitcask = "bitcask"
	BackendRedis   = "redis"
	BackendS3      = "s3"
	BackendMemory  = "memory"
)

// Store is a key-value engine. GetValue returns nil, nil for a key that does not exist.
type Store interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	GetValue(ctx context.Context, key string) ([]byte, error)
	PutValue(ctx context.Context, key string, value []byte) error
	DeleteKey(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures an engine for Open.
type Options struct {
	Backend string
	Path    string // bitcask database directory
	Redis   RedisOptions
	S3      S3Options
}

// Open builds the engine named by opts.Backend. An empty name means bitcask.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendBitcask:
		return NewBitcaskStore(opts.Path)
	case BackendRedis:
		return NewRedisStore(ctx, opts.Redis)
	case BackendS3:
		return NewS3Store(ctx, opts.S3)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
