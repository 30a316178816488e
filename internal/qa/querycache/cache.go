// Package querycache memoizes retrieval output per normalized query text.
// It is purely a latency optimization: a miss (or the cache being disabled)
// never changes pipeline behavior.
package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/platform/observability"
)

const defaultCapacity = 512

// Cache stores frozen retrieval results keyed by normalized query hash.
type Cache struct {
	cache *expirable.LRU[string, []domain.Chunk]
}

// New creates a query result cache with the given capacity and TTL.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	return &Cache{
		cache: expirable.NewLRU[string, []domain.Chunk](capacity, nil, ttl),
	}
}

// Normalize lower-cases and collapses whitespace so trivially different
// phrasings of the same query share a cache entry.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func hashKey(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))

	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached retrieval result for query.
func (c *Cache) Get(query string) ([]domain.Chunk, bool) {
	chunks, ok := c.cache.Get(hashKey(query))
	if !ok {
		observability.QueryCacheHits.WithLabelValues("miss").Inc()

		return nil, false
	}

	observability.QueryCacheHits.WithLabelValues("hit").Inc()

	return append([]domain.Chunk(nil), chunks...), true
}

// Put stores a copy of the retrieval result for query. Copies in and out
// keep cached chunks immutable under later stage-local score overwrites.
func (c *Cache) Put(query string, chunks []domain.Chunk) {
	c.cache.Add(hashKey(query), append([]domain.Chunk(nil), chunks...))
}
