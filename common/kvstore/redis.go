package kvstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/logger"
)

// RedisStore is the durable tier of the KV store. Expiry is enforced both
// by the envelope (expiry-on-read) and by the redis TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	codec  codec
	log    *logger.Logger
}

// NewRedisStore creates a redis-backed store.
func NewRedisStore(client *redis.Client, prefix string, crypto *cryptox.Provider, keys *SessionKeys, log *logger.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		codec:  codec{crypto: crypto, keys: keys},
		log:    log,
	}
}

// Open returns a redis-backed store when the durable tier answers a ping,
// falling back to an in-memory store with identical semantics otherwise.
func Open(ctx context.Context, client *redis.Client, prefix string, crypto *cryptox.Provider, keys *SessionKeys, log *logger.Logger) Store {
	if client != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err == nil {
			return NewRedisStore(client, prefix, crypto, keys, log)
		}
		log.Warn("durable kv tier unreachable, using in-memory fallback")
	}
	return NewMemoryStore(prefix, crypto, keys, log)
}

// Put stores a value under the prefixed key.
func (r *RedisStore) Put(ctx context.Context, key string, value any, opts *PutOptions) error {
	encoded, err := r.codec.encode(value, opts)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if opts != nil && opts.Expires > 0 {
		ttl = opts.Expires
	}

	if err := r.client.Set(ctx, r.prefix+key, string(encoded), ttl).Err(); err != nil {
		r.log.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("set key %s: %w", key, err)
	}
	r.log.Debug("redis SET", "key", key, "ttl", ttl)
	return nil
}

// Get retrieves a value. Expired records are discarded on read.
func (r *RedisStore) Get(ctx context.Context, key string, out any) (bool, error) {
	encoded, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		r.log.Error("redis GET failed", "key", key, "error", err)
		return false, fmt.Errorf("get key %s: %w", key, err)
	}

	ok, decodeErr := r.codec.decode(encoded, out)
	if decodeErr == nil && !ok {
		r.client.Del(ctx, r.prefix+key)
	}
	return ok, decodeErr
}

// Remove deletes a key.
func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		r.log.Error("redis DEL failed", "key", key, "error", err)
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}

// Clear removes every key under the store's prefix.
func (r *RedisStore) Clear(ctx context.Context) error {
	keys, err := r.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Error("redis DEL failed", "keys", len(keys), "error", err)
		return fmt.Errorf("clear prefix %s: %w", r.prefix, err)
	}
	return nil
}

// Keys lists every logical key under the store's prefix.
func (r *RedisStore) Keys(ctx context.Context) ([]string, error) {
	physical, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(physical))
	for _, k := range physical {
		keys = append(keys, strings.TrimPrefix(k, r.prefix))
	}
	return keys, nil
}

func (r *RedisStore) scan(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			r.log.Error("redis SCAN failed", "prefix", r.prefix, "error", err)
			return nil, fmt.Errorf("scan prefix %s: %w", r.prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
