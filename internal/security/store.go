// Package security implements the abuse defense pipeline that runs ahead of
// the auth handlers: route and signature screening, IP blocking, per-route
// brute-force throttling and adaptive rate limiting.
package security

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/welldanyogia/umx-auth/backend/internal/clock"
)

// Store errors
var (
	ErrStoreUnavailable = errors.New("abuse store unavailable")
	ErrStoreContention  = errors.New("abuse store update contended")
)

// Record is the per-key abuse state shared by all guards.
// Tokens is only used by the rate limiter.
type Record struct {
	Count        int       `json:"count"`
	FirstAttempt time.Time `json:"first_attempt"`
	LastAttempt  time.Time `json:"last_attempt"`
	Blocked      bool      `json:"blocked"`
	BlockExpiry  time.Time `json:"block_expiry"`
	Tokens       float64   `json:"tokens,omitempty"`
}

// UpdateFunc mutates rec in place. exists is false when the key is missing
// or expired, in which case rec is zero. Returning false deletes the key.
type UpdateFunc func(rec *Record, exists bool) bool

// Store is a key-value store with per-key exclusive read-modify-write
type Store interface {
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (Record, error)
	Get(ctx context.Context, key string) (Record, bool, error)
	Delete(ctx context.Context, key string) error
	// Scan calls fn for every live key with the prefix until fn returns false
	Scan(ctx context.Context, prefix string, fn func(key string, rec Record) bool) error
}

const memoryShardCount = 32

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

type memoryShard struct {
	mu    sync.Mutex
	items map[string]memoryEntry
}

// MemoryStore is a sharded in-process Store. Expired entries are invisible
// immediately and reclaimed by Sweep.
type MemoryStore struct {
	shards [memoryShardCount]*memoryShard
	clock  clock.Clock
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real{}
	}
	s := &MemoryStore{clock: clk}
	for i := range s.shards {
		s.shards[i] = &memoryShard{items: make(map[string]memoryEntry)}
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%memoryShardCount]
}

// Update applies fn under the key's shard lock
func (s *MemoryStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (Record, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.clock.Now()
	entry, exists := sh.items[key]
	if exists && !now.Before(entry.expiresAt) {
		exists = false
	}
	var rec Record
	if exists {
		rec = entry.rec
	}

	if !fn(&rec, exists) {
		delete(sh.items, key)
		return rec, nil
	}
	sh.items[key] = memoryEntry{rec: rec, expiresAt: now.Add(ttl)}
	return rec, nil
}

// Get returns the live record at key
func (s *MemoryStore) Get(ctx context.Context, key string) (Record, bool, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.items[key]
	if !ok || !s.clock.Now().Before(entry.expiresAt) {
		return Record{}, false, nil
	}
	return entry.rec, true, nil
}

// Delete removes key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.items, key)
	sh.mu.Unlock()
	return nil
}

// Scan visits live records with the prefix. fn runs outside the shard lock.
func (s *MemoryStore) Scan(ctx context.Context, prefix string, fn func(key string, rec Record) bool) error {
	now := s.clock.Now()
	for _, sh := range s.shards {
		type item struct {
			key string
			rec Record
		}
		var batch []item
		sh.mu.Lock()
		for k, e := range sh.items {
			if strings.HasPrefix(k, prefix) && now.Before(e.expiresAt) {
				batch = append(batch, item{k, e.rec})
			}
		}
		sh.mu.Unlock()

		for _, it := range batch {
			if !fn(it.key, it.rec) {
				return nil
			}
		}
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed
func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.items {
			if !now.Before(e.expiresAt) {
				delete(sh.items, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && logger != nil {
				logger.Debug("Swept expired abuse records", slog.Int("removed", n))
			}
		}
	}
}
