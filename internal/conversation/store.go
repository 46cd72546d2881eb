package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrVersionConflict is returned by Save when the stored version differs
	// from the version the caller read.
	ErrVersionConflict = errors.New("conversation: version conflict")
	// ErrNotFound is returned by Save when the context was never created.
	ErrNotFound = errors.New("conversation: context not found")
	// ErrAlreadyExists is returned by Create when the id or the conversation
	// id is already taken.
	ErrAlreadyExists = errors.New("conversation: context already exists")
	// ErrInvalidStoreType is returned by NewStore for an unknown kind.
	ErrInvalidStoreType = errors.New("conversation: invalid store type")
	// ErrInvalidConfig is returned by NewStore when a required option is missing.
	ErrInvalidConfig = errors.New("conversation: invalid store config")
)

// Store persists orchestration contexts.
//
// Get and GetByConversation return (nil, nil) when nothing is stored.
// Create sets Version to 1. Save succeeds only when c.Version equals the
// stored version, and increments c.Version on success.
type Store interface {
	Get(ctx context.Context, id string) (*Context, error)
	GetByConversation(ctx context.Context, conversationID string) (*Context, error)
	Create(ctx context.Context, c *Context) error
	Save(ctx context.Context, c *Context) error
}

// StoreType selects a Store implementation.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient redis.UniversalClient
	redisTTL    time.Duration
	keyPrefix   string
}

// WithRedisClient sets the client used by the redis store.
func WithRedisClient(client redis.UniversalClient) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the expiry of context keys. It is refreshed on every write.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// WithKeyPrefix overrides the redis key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.keyPrefix = prefix
	}
}

// NewStore builds a Store of the given type.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.redisTTL, cfg.keyPrefix), nil
	default:
		return nil, ErrInvalidStoreType
	}
}
