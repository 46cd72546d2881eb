package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "ledgerd:ctx:"
	defaultTTL       = 7 * 24 * time.Hour
)

// RedisStore is a Store backed by redis. Each context is one JSON value plus
// an index key from conversation id to context id. Save uses WATCH/MULTI/EXEC
// on the context key for optimistic locking.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisStore returns a RedisStore. Zero ttl and empty prefix select defaults.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration, prefix string) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, ttl: ttl, prefix: prefix}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Context, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get context %s: %w", id, err)
	}
	return decode(val)
}

// GetByConversation implements Store.
func (s *RedisStore) GetByConversation(ctx context.Context, conversationID string) (*Context, error) {
	id, err := s.client.Get(ctx, s.convKey(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve conversation %s: %w", conversationID, err)
	}
	return s.Get(ctx, id)
}

// Create implements Store. The context key and the conversation index are
// claimed with SETNX so a concurrent Create for the same conversation fails
// with ErrAlreadyExists.
func (s *RedisStore) Create(ctx context.Context, c *Context) error {
	ts := now().UTC()
	c.CreatedAt = ts
	c.UpdatedAt = ts
	c.Version = 1

	val, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.convKey(c.ConversationID), c.ID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim conversation %s: %w", c.ConversationID, err)
	}
	if !ok {
		c.Version = 0
		return ErrAlreadyExists
	}

	ok, err = s.client.SetNX(ctx, s.key(c.ID), val, s.ttl).Result()
	if err != nil || !ok {
		s.client.Del(ctx, s.convKey(c.ConversationID))
		c.Version = 0
		if err != nil {
			return fmt.Errorf("create context %s: %w", c.ID, err)
		}
		return ErrAlreadyExists
	}
	return nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, c *Context) error {
	key := s.key(c.ID)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(val, &stored); err != nil {
			return fmt.Errorf("decode stored version: %w", err)
		}
		if stored.Version != c.Version {
			return ErrVersionConflict
		}

		next := *c
		next.Version++
		next.UpdatedAt = now().UTC()
		newVal, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("encode context: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			pipe.Expire(ctx, s.convKey(c.ConversationID), s.ttl)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return ErrVersionConflict
		}
		if err != nil {
			return err
		}

		c.Version = next.Version
		c.UpdatedAt = next.UpdatedAt
		return nil
	}, key)
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) convKey(conversationID string) string {
	return s.prefix + "conv:" + conversationID
}

func decode(val []byte) (*Context, error) {
	var c Context
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	if c.SessionData == nil {
		c.SessionData = map[string]any{}
	}
	if c.RecentMessages == nil {
		c.RecentMessages = []Message{}
	}
	return &c, nil
}
