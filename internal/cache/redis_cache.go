package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RelatedPostsCache is a cache-aside layer for related-post lists, keyed by
// the subject post, locale and limit. A nil *RelatedPostsCache is valid and
// behaves as a permanent cache miss, so callers need no enabled/disabled
// branching. Entries are short-lived; TTL covers the neighbors-changed-
// under-us case that per-subject invalidation cannot see.
type RelatedPostsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRelatedPostsCache(client *redis.Client, ttl time.Duration) *RelatedPostsCache {
	return &RelatedPostsCache{
		client: client,
		ttl:    ttl,
	}
}

func relatedKey(postID int64, locale string, limit int) string {
	return fmt.Sprintf("related:%d:%s:%d", postID, locale, limit)
}

// Get loads a cached related-post list into dest. It returns false on a miss
// or on any redis/decode failure; cache trouble must never surface.
func (c *RelatedPostsCache) Get(ctx context.Context, postID int64, locale string, limit int, dest any) bool {
	if c == nil {
		return false
	}

	data, err := c.client.Get(ctx, relatedKey(postID, locale, limit)).Result()
	if err == redis.Nil {
		return false // Cache miss
	}
	if err != nil {
		log.Printf("Failed to read related-posts cache for post %d: %v", postID, err)
		return false
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		log.Printf("Failed to unmarshal cached related posts for post %d: %v", postID, err)
		return false
	}
	return true
}

// Set stores a related-post list with the configured TTL. Failures are
// logged and swallowed.
func (c *RelatedPostsCache) Set(ctx context.Context, postID int64, locale string, limit int, value any) {
	if c == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("Failed to marshal related posts for post %d: %v", postID, err)
		return
	}

	if err := c.client.Set(ctx, relatedKey(postID, locale, limit), data, c.ttl).Err(); err != nil {
		log.Printf("Failed to write related-posts cache for post %d: %v", postID, err)
	}
}

// Invalidate drops every cached list whose subject is postID, across all
// locale/limit combinations. Called after re-indexing or clearing a post's
// embedding.
func (c *RelatedPostsCache) Invalidate(ctx context.Context, postID int64) {
	if c == nil {
		return
	}

	pattern := fmt.Sprintf("related:%d:*", postID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("Failed to invalidate related-posts cache key %s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("Failed to scan related-posts cache for post %d: %v", postID, err)
	}
}

// Ping checks if Redis is available.
func (c *RelatedPostsCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
