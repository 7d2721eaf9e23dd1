package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/scrape"
)

const cacheKeyPrefix = "pql:search:v1:"

// CachedSearcher memoizes successful search results in Redis. Errored
// results are never cached so a credentials fix takes effect immediately.
// Redis failures degrade to an uncached search.
type CachedSearcher struct {
	next Searcher
	rdb  redis.Cmdable
	ttl  time.Duration
}

// NewCachedSearcher wraps next with a Redis-backed cache.
func NewCachedSearcher(next Searcher, rdb redis.Cmdable, ttl time.Duration) *CachedSearcher {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedSearcher{next: next, rdb: rdb, ttl: ttl}
}

// NewRedisClient parses a redis:// URL, falling back to a bare address.
func NewRedisClient(redisURL string) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	return redis.NewClient(opts)
}

func (c *CachedSearcher) Search(ctx context.Context, query string, limit int) model.SearchResult {
	key := cacheKey(query, limit)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached model.SearchResult
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			// Keys are case-folded; echo the caller's query, not the first one cached.
			cached.Query = scrape.CleanText(query)
			return cached
		}
		zap.L().Warn("evidence: discarding corrupt cached search", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		zap.L().Warn("evidence: search cache read failed", zap.Error(err))
	}

	result := c.next.Search(ctx, query, limit)
	if result.Error != "" || result.Query == "" {
		return result
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return result
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		zap.L().Warn("evidence: search cache write failed", zap.Error(err))
	}
	return result
}

func cacheKey(query string, limit int) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", ClampLimit(limit), normalized)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
