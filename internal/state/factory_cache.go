package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"zapquote/internal/chain"
	"zapquote/internal/metrics"
)

// DefaultFactoryTTL is how long factory level values, such as fee settings, are reused.
const DefaultFactoryTTL = 5 * time.Minute

type cacheKey struct {
	chainID uint64
	address common.Address
	method  string
}

type cacheEntry struct {
	values    []interface{}
	expiresAt time.Time
}

// FactoryCache caches slow moving contract reads shared by many pools, keyed by
// (chain id, address, method and arguments). Concurrent misses of the same key are
// coalesced into a single read.
type FactoryCache struct {
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
	group   singleflight.Group
}

// NewFactoryCache creates a cache. A non-positive ttl uses DefaultFactoryTTL.
func NewFactoryCache(ttl time.Duration, m *metrics.Metrics) *FactoryCache {
	if ttl <= 0 {
		ttl = DefaultFactoryTTL
	}
	return &FactoryCache{
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func keyFor(chainID uint64, call chain.Call) cacheKey {
	method := call.Method
	if len(call.Args) > 0 {
		method = fmt.Sprintf("%s%v", call.Method, call.Args)
	}
	return cacheKey{chainID: chainID, address: call.To, method: method}
}

// Get returns the cached values of call, reading through reader on a miss, after expiry
// or when forceRefresh is set.
func (c *FactoryCache) Get(ctx context.Context, chainID uint64, reader chain.Reader, call chain.Call, forceRefresh bool) ([]interface{}, error) {
	key := keyFor(chainID, call)

	if !forceRefresh {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.now().Before(entry.expiresAt) {
			c.metrics.CacheHit()
			return entry.values, nil
		}
	}
	c.metrics.CacheMiss()

	flightKey := fmt.Sprintf("%d/%s/%s/%t", chainID, key.address.Hex(), key.method, forceRefresh)
	v, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		values, err := chain.One(ctx, reader, call)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{values: values, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return values, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]interface{}), nil
}

// Invalidate drops every entry for address.
func (c *FactoryCache) Invalidate(chainID uint64, address common.Address) {
	c.mu.Lock()
	for key := range c.entries {
		if key.chainID == chainID && key.address == address {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
