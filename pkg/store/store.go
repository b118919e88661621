package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed storage keys shared by the chat client and the admin client.
const (
	KeySessionID  = "chat_session_id"
	KeyAdminToken = "admin_token"
)

var (
	ErrInvalidConfig    = errors.New("store: invalid configuration")
	ErrInvalidStoreType = errors.New("store: unknown store type")
)

// Store is the durable client-side key/value storage the chat client keeps
// its session id and admin token in.
type Store interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	Set(ctx context.Context, key, value string) error

	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error

	Close() error
}

type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeFile   StoreType = "file"
)

// StoreOption is a functional option for configuring a store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
	redisPrefix string
	filePath    string
}

// WithRedisClient sets the Redis client for the redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the TTL for Redis keys. Zero keeps keys forever.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// WithRedisPrefix overrides the key prefix used by the redis store.
func WithRedisPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.redisPrefix = prefix
	}
}

// WithFilePath sets the state file for the file store.
func WithFilePath(path string) StoreOption {
	return func(c *storeConfig) {
		c.filePath = path
	}
}

// NewStore creates a Store for the given driver type.
// The redis driver requires WithRedisClient, the file driver WithFilePath.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{
		redisPrefix: "portfolio-chat:",
	}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{
			client: config.redisClient,
			ttl:    config.redisTTL,
			prefix: config.redisPrefix,
		}, nil

	case StoreTypeFile:
		if config.filePath == "" {
			return nil, ErrInvalidConfig
		}
		return NewFileStore(config.filePath)

	default:
		return nil, ErrInvalidStoreType
	}
}
