package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Ensure redisStore implements Store interface.
var _ Store = (*redisStore)(nil)

// DefaultNamespace prefixes keys in shared engines (redis, s3).
const DefaultNamespace = "historykv"

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Address   string
	Password  string
	DB        int
	Namespace string // Optional. Defaults to DefaultNamespace.
}

type redisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to redis and checks the connection with a ping.
func NewRedisStore(ctx context.Context, opts RedisOptions) (Store, error) {
	if opts.Address == "" {
		return nil, errors.New("redis address is required")
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{client: client, namespace: opts.Namespace}, nil
}

func (s *redisStore) ns(key string) string {
	return s.namespace + ":" + key
}

// matchPrefix builds a SCAN pattern matching keys that start with prefix.
func matchPrefix(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString("*")
	return b.String()
}

func (s *redisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	iter := s.client.Scan(ctx, 0, matchPrefix(s.ns(prefix)), 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.namespace+":"))
	}
	if err := iter.Err(); err != nil {
		log.WithError(err).WithField("prefix", prefix).Error("error scanning redis keys")
		return nil, fmt.Errorf("error scanning keys: %w", err)
	}
	return keys, nil
}

func (s *redisStore) GetValue(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.ns(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		log.WithError(err).WithField("key", key).Error("error getting redis key")
		return nil, fmt.Errorf("error getting key: %w", err)
	}
	return data, nil
}

func (s *redisStore) PutValue(ctx context.Context, key string, value []byte) error {
	log.WithField("key", key).WithField("length", len(value)).Debug("redis set")
	if err := s.client.Set(ctx, s.ns(key), value, 0).Err(); err != nil {
		log.WithError(err).WithField("key", key).Error("error setting redis key")
		return fmt.Errorf("error putting key: %w", err)
	}
	return nil
}

func (s *redisStore) DeleteKey(ctx context.Context, key string) error {
	log.WithField("key", key).Debug("redis del")
	if err := s.client.Del(ctx, s.ns(key)).Err(); err != nil {
		log.WithError(err).WithField("key", key).Error("error deleting redis key")
		return fmt.Errorf("error deleting key: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
