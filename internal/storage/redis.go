package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// maxCASAttempts bounds optimistic retries when another writer touches the key
// between WATCH and EXEC.
const maxCASAttempts = 100

// ErrConflict is returned when an update keeps losing the optimistic race.
var ErrConflict = errors.New("concurrent update conflict")

// RedisKV implements service.KV on Redis. Update uses WATCH/MULTI so concurrent
// writers on different hosts or processes never lose each other's changes.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures a Redis-backed store.
type RedisOptions struct {
	Addr     string
	Password string
	Prefix   string
	DB       int
}

// NewRedisKV connects to Redis and verifies the connection.
func NewRedisKV(ctx context.Context, opts RedisOptions) (*RedisKV, error) {
	if err := validateString(opts.Addr, "addr"); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: 10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisKVFromClient(client, opts.Prefix), nil
}

// NewRedisKVFromClient wraps an existing client.
func NewRedisKVFromClient(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) key(k string) string {
	return r.prefix + k
}

// Get returns the value stored under key, or nil when the key is absent.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateString(key, "key"); err != nil {
		return nil, err
	}
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key without expiry.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := validateString(key, "key"); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Update is an optimistic compare-and-swap loop. fn may run more than once;
// only the invocation whose result is committed counts.
func (r *RedisKV) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	if err := validateString(key, "key"); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: fn", ErrNilParameter)
	}

	k := r.key(key)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("failed to read key %q: %w", key, err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: key %q after %d attempts", ErrConflict, key, maxCASAttempts)
}

// Delete removes key.
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := validateString(key, "key"); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Ping verifies the server is reachable.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
