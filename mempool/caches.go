// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/elastic/go-freelru"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jellydator/ttlcache/v3"

	"github.com/btcsuite/cyclepool/chainhash"
)

// VerifyResult is a remembered verification outcome.  Err is nil for a
// successful verification, in which case Cycles holds the consumed cycles.
type VerifyResult struct {
	Cycles uint64
	Err    error
	Epoch  uint64
}

// VerifyCache is a bounded least recently used cache of verification
// outcomes keyed by transaction hash.  Results are only returned while the
// chain epoch they were produced in is current.  It is safe for concurrent
// use.
type VerifyCache struct {
	cache *lru.Cache[chainhash.Hash, VerifyResult]
}

// NewVerifyCache returns a cache that holds at most capacity results.
func NewVerifyCache(capacity int) (*VerifyCache, error) {
	cache, err := lru.New[chainhash.Hash, VerifyResult](capacity)
	if err != nil {
		return nil, fmt.Errorf("unable to create verify cache: %w", err)
	}
	return &VerifyCache{cache: cache}, nil
}

// Lookup returns the result for hash when it was produced in epoch.  A stale
// result is dropped.
func (c *VerifyCache) Lookup(hash chainhash.Hash, epoch uint64) (VerifyResult, bool) {
	result, ok := c.cache.Get(hash)
	if !ok {
		return VerifyResult{}, false
	}
	if result.Epoch != epoch {
		c.cache.Remove(hash)
		return VerifyResult{}, false
	}
	return result, true
}

// Add remembers a result, evicting the least recently used one when full.
func (c *VerifyCache) Add(hash chainhash.Hash, result VerifyResult) {
	c.cache.Add(hash, result)
}

// Contains reports whether any result, stale or not, is held for hash
// without touching its recency.
func (c *VerifyCache) Contains(hash chainhash.Hash) bool {
	return c.cache.Contains(hash)
}

// InvalidateStale drops every result not produced in epoch and returns how
// many were dropped.
func (c *VerifyCache) InvalidateStale(epoch uint64) int {
	var dropped int
	for _, hash := range c.cache.Keys() {
		result, ok := c.cache.Peek(hash)
		if ok && result.Epoch != epoch {
			c.cache.Remove(hash)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of held results.
func (c *VerifyCache) Len() int {
	return c.cache.Len()
}

// ConflictRecord explains why a transaction was remembered as conflicted.
type ConflictRecord struct {
	Reason string
	Time   time.Time
}

// ConflictCache remembers the hashes of transactions that lost a conflict so
// resubmissions are refused cheaply.  It is bounded by capacity and,
// optionally, by a time to live.  It is safe for concurrent use.
type ConflictCache struct {
	cache *ttlcache.Cache[chainhash.Hash, ConflictRecord]
}

// NewConflictCache returns a cache holding at most capacity records, each for
// at most ttl when ttl is positive.
func NewConflictCache(capacity int, ttl time.Duration) *ConflictCache {
	opts := []ttlcache.Option[chainhash.Hash, ConflictRecord]{
		ttlcache.WithCapacity[chainhash.Hash, ConflictRecord](uint64(capacity)),
		ttlcache.WithDisableTouchOnHit[chainhash.Hash, ConflictRecord](),
	}
	if ttl > 0 {
		opts = append(opts, ttlcache.WithTTL[chainhash.Hash, ConflictRecord](ttl))
	}
	return &ConflictCache{cache: ttlcache.New(opts...)}
}

// Add remembers the hash with the given record.
func (c *ConflictCache) Add(hash chainhash.Hash, rec ConflictRecord) {
	c.cache.Set(hash, rec, ttlcache.DefaultTTL)
}

// Contains reports whether an unexpired record is held for hash.
func (c *ConflictCache) Contains(hash chainhash.Hash) bool {
	return c.cache.Has(hash)
}

// Lookup returns the record held for hash.
func (c *ConflictCache) Lookup(hash chainhash.Hash) (ConflictRecord, bool) {
	item := c.cache.Get(hash)
	if item == nil {
		return ConflictRecord{}, false
	}
	return item.Value(), true
}

// Remove forgets hash.
func (c *ConflictCache) Remove(hash chainhash.Hash) {
	c.cache.Delete(hash)
}

// DeleteExpired drops every record whose time to live has elapsed.
func (c *ConflictCache) DeleteExpired() {
	c.cache.DeleteExpired()
}

// Len returns the number of held records.
func (c *ConflictCache) Len() int {
	return c.cache.Len()
}

// CommittedCache remembers the hashes of recently committed transactions and
// the height they were committed at.  It is safe for concurrent use.
type CommittedCache struct {
	cache *freelru.SyncedLRU[chainhash.Hash, uint64]
}

// hashKey spreads transaction hashes over the cache buckets.  Hashes are
// uniformly distributed already, so the leading bytes suffice.
func hashKey(hash chainhash.Hash) uint32 {
	return binary.LittleEndian.Uint32(hash[:4])
}

// NewCommittedCache returns a cache holding at most capacity hashes.
func NewCommittedCache(capacity int) (*CommittedCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("committed cache capacity must be "+
			"positive, got %d", capacity)
	}
	cache, err := freelru.NewSynced[chainhash.Hash, uint64](uint32(capacity),
		hashKey)
	if err != nil {
		return nil, fmt.Errorf("unable to create committed cache: %w", err)
	}
	return &CommittedCache{cache: cache}, nil
}

// Add remembers that hash was committed at height.
func (c *CommittedCache) Add(hash chainhash.Hash, height uint64) {
	c.cache.Add(hash, height)
}

// Height returns the height hash was committed at.
func (c *CommittedCache) Height(hash chainhash.Hash) (uint64, bool) {
	return c.cache.Peek(hash)
}

// Contains reports whether hash is held.
func (c *CommittedCache) Contains(hash chainhash.Hash) bool {
	return c.cache.Contains(hash)
}

// Remove forgets hash.
func (c *CommittedCache) Remove(hash chainhash.Hash) {
	c.cache.Remove(hash)
}

// Len returns the number of held hashes.
func (c *CommittedCache) Len() int {
	return c.cache.Len()
}
