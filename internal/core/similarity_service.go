package core

import (
	"context"
	"log"

	"github.com/hanlog/hanlog/internal/cache"
	"github.com/hanlog/hanlog/internal/store"
)

type RelatedPost struct {
	ID         int64   `json:"id"`
	Slug       string  `json:"slug"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"` // 1 - cosine distance; higher is more similar
}

// SimilarityStore is the slice of the post store similarity search needs.
type SimilarityStore interface {
	GetPostByID(id int64) (*store.Post, error)
	QueryNearestByVector(excludeID int64, locale string, vec []float32, limit int) ([]store.Neighbor, error)
}

// SimilarityService finds posts semantically closest to a given post, scoped
// to one locale and to published, already-visible posts.
type SimilarityService struct {
	dbStore      SimilarityStore
	relatedCache *cache.RelatedPostsCache // nil when caching is disabled
}

func NewSimilarityService(db SimilarityStore, relatedCache *cache.RelatedPostsCache) *SimilarityService {
	return &SimilarityService{
		dbStore:      db,
		relatedCache: relatedCache,
	}
}

// FindSimilarPosts returns up to limit published posts in the given locale
// closest to the subject post, excluding the subject itself. Related posts
// are best-effort: a missing post, a missing embedding, or any store failure
// yields an empty list, never an error. The post page renders an empty
// related section instead of failing.
func (s *SimilarityService) FindSimilarPosts(ctx context.Context, postID int64, locale string, limit int) []RelatedPost {
	related := []RelatedPost{}
	if limit <= 0 {
		return related
	}

	if s.relatedCache.Get(ctx, postID, locale, limit, &related) {
		return related
	}

	post, err := s.dbStore.GetPostByID(postID)
	if err != nil {
		log.Printf("Failed to load post %d for similarity search: %v", postID, err)
		return related
	}
	if post == nil || len(post.Embedding) == 0 {
		// No subject or no embedding yet; nothing to compare against.
		return related
	}

	neighbors, err := s.dbStore.QueryNearestByVector(postID, locale, post.Embedding, limit)
	if err != nil {
		log.Printf("Nearest-neighbor query failed for post %d: %v", postID, err)
		return related
	}

	for _, n := range neighbors {
		related = append(related, RelatedPost{
			ID:         n.ID,
			Slug:       n.Slug,
			Title:      n.Title,
			Similarity: 1 - n.Distance,
		})
	}

	s.relatedCache.Set(ctx, postID, locale, limit, related)
	return related
}
