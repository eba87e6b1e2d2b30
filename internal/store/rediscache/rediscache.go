// Package rediscache wraps a store.TransactionalStore with a read-through
// Redis cache in front of public_claim_info/{CID} reads, the read-mostly,
// dashboard-facing record — mirroring the teacher's ledger.go caching
// balances in Redis ahead of its durable Postgres store. It never touches
// the transactional path: every RunTransaction call goes straight to the
// wrapped store, preserving the "no correctness-relevant in-process cache"
// rule a payment engine needs.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dhali/claimengine/internal/store"
)

// publicCollection is the only collection this cache fronts.
const publicCollection = "public_claim_info"

// Store decorates a store.TransactionalStore with a Redis read-through
// cache for public channel record lookups.
type Store struct {
	store.TransactionalStore
	rdb *redis.Client
	ttl time.Duration
}

// New wraps inner with a Redis cache reachable at redisAddr. ttl bounds how
// long a cached public record may be served without a store read; pass 0
// for the teacher's own default of one minute.
func New(inner store.TransactionalStore, redisAddr string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{
		TransactionalStore: inner,
		rdb: redis.NewClient(&redis.Options{
			Addr:         redisAddr,
			DialTimeout:  10 * time.Millisecond,
			ReadTimeout:  20 * time.Millisecond,
			WriteTimeout: 20 * time.Millisecond,
		}),
		ttl: ttl,
	}
}

func cacheKey(cid string) string { return "public_claim_info:" + cid }

// GetPublicRecord reads public_claim_info/{cid}, serving from Redis when
// present and falling back to (and repopulating from) the wrapped store on
// a cache miss or a Redis error. A Redis outage never fails the read: it
// just degrades to always hitting the authoritative store.
func (s *Store) GetPublicRecord(ctx context.Context, cid string, out interface{}) (bool, error) {
	key := cacheKey(cid)

	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		return true, json.Unmarshal(raw, out)
	}

	var found bool
	var raw []byte
	err := s.TransactionalStore.RunTransaction(ctx, func(ctx context.Context, tx store.Transaction) error {
		snap, err := tx.Get(store.Doc(publicCollection, cid))
		if err != nil {
			return err
		}
		found = snap.Exists()
		if !found {
			return nil
		}
		return snap.DataTo(out)
	})
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if raw, err = json.Marshal(out); err == nil {
		s.rdb.Set(ctx, key, raw, s.ttl)
	}
	return true, nil
}

// Invalidate evicts cid's cached public record, so the next
// GetPublicRecord reads the wrapped store. The engine's write paths
// (validator, reconciler, consolidator) do not call it; without a call, a
// cached entry is served until it expires after ttl.
func (s *Store) Invalidate(ctx context.Context, cid string) error {
	return s.rdb.Del(ctx, cacheKey(cid)).Err()
}

// Close releases the Redis client's connection pool.
func (s *Store) Close() error { return s.rdb.Close() }
