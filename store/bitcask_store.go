package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// Ensure bitcaskStore implements Store interface.
var _ Store = (*bitcaskStore)(nil)

// ErrEmptyKey is returned for operations on the empty key, which bitcask
// cannot hold.
var ErrEmptyKey = errors.New("empty key")

// bitcaskStore keeps every record in a local bitcask database.
type bitcaskStore struct {
	db *bitcask.Bitcask
}

// NewBitcaskStore opens, or creates, the database at dbPath. Parent
// directories are created as needed.
func NewBitcaskStore(dbPath string) (Store, error) {
	if dbPath == "" {
		return nil, errors.New("bitcask database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("error creating bitcask directory: %w", err)
	}

	// records grow with every insert, so neither size is capped
	db, err := bitcask.Open(
		dbPath,
		bitcask.WithMaxKeySize(0),
		bitcask.WithMaxValueSize(0),
	)
	if err != nil {
		log.WithError(err).WithField("path", dbPath).Error("error opening bitcask database")
		return nil, fmt.Errorf("error opening bitcask database: %w", err)
	}
	log.WithField("path", dbPath).Debug("opened bitcask database")

	return &bitcaskStore{db: db}, nil
}

// ListKeys returns the keys starting with prefix in sorted order.
func (s *bitcaskStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := s.db.Scan([]byte(prefix), func(key []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("prefix", prefix).Error("error scanning bitcask keys")
		return nil, fmt.Errorf("error scanning keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *bitcaskStore) GetValue(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	value, err := s.db.Get([]byte(key))
	switch {
	case errors.Is(err, bitcask.ErrKeyNotFound):
		return nil, nil
	case err != nil:
		log.WithError(err).WithField("key", key).Error("error getting bitcask key")
		return nil, fmt.Errorf("error getting key: %w", err)
	}
	return value, nil
}

func (s *bitcaskStore) PutValue(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	log.WithField("key", key).WithField("length", len(value)).Debug("bitcask put")
	if err := s.db.Put([]byte(key), value); err != nil {
		log.WithError(err).WithField("key", key).Error("error putting bitcask key")
		return fmt.Errorf("error putting key: %w", err)
	}
	return nil
}

// DeleteKey removes key. Deleting an absent key succeeds.
func (s *bitcaskStore) DeleteKey(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	log.WithField("key", key).Debug("bitcask delete")
	if err := s.db.Delete([]byte(key)); err != nil {
		log.WithError(err).WithField("key", key).Error("error deleting bitcask key")
		return fmt.Errorf("error deleting key: %w", err)
	}
	return nil
}

func (s *bitcaskStore) Close() error {
	return s.db.Close()
}
