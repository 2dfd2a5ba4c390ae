package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisUpdateRetries = 10

// RedisStore shares abuse state across instances. Updates use WATCH/MULTI
// so concurrent hits on one key from several processes never lose writes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore; keys are namespaced by prefix
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "umx:abuse:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Update performs an optimistic read-modify-write and retries on conflict.
// fn may run more than once.
func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (Record, error) {
	k := s.prefix + key
	var out Record

	txf := func(tx *redis.Tx) error {
		rec, exists, err := s.read(ctx, tx, k)
		if err != nil {
			return err
		}
		keep := fn(&rec, exists)

		var data []byte
		if keep {
			if data, err = json.Marshal(rec); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if !keep {
				pipe.Del(ctx, k)
				return nil
			}
			pipe.Set(ctx, k, data, ttl)
			return nil
		})
		out = rec
		return err
	}

	for i := 0; i < redisUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Record{}, ErrStoreContention
}

func (s *RedisStore) read(ctx context.Context, cmd redis.Cmdable, k string) (Record, bool, error) {
	var rec Record
	raw, err := cmd.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Corrupt entries are treated as missing and overwritten
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Get returns the record at key
func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	rec, ok, err := s.read(ctx, s.client, s.prefix+key)
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec, ok, nil
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Scan walks keys with SCAN MATCH; entries deleted mid-scan are skipped
func (s *RedisStore) Scan(ctx context.Context, prefix string, fn func(key string, rec Record) bool) error {
	iter := s.client.Scan(ctx, 0, s.prefix+escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		rec, ok, err := s.read(ctx, s.client, full)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !ok {
			continue
		}
		if !fn(strings.TrimPrefix(full, s.prefix), rec) {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
