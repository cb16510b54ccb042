package core

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/hanlog/hanlog/internal/cache"
	"github.com/hanlog/hanlog/internal/store"
)

// bulkIndexDelay is the pause between consecutive posts in a bulk run, to
// stay under the embedding provider's rate limit. The first post is
// processed immediately.
const bulkIndexDelay = 200 * time.Millisecond

type EmbeddingResult struct {
	PostID  int64  `json:"post_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"` // Set if and only if Success is false
}

type BulkEmbeddingResult struct {
	JobID     string            `json:"job_id"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []EmbeddingResult `json:"results"` // One per post, in processing order
}

// PostEmbedder produces a vector for a post's text.
type PostEmbedder interface {
	GetPostEmbedding(ctx context.Context, title, content string) ([]float32, error)
}

// EmbeddingStore is the slice of the post store the indexing pipeline needs.
type EmbeddingStore interface {
	GetPostByID(id int64) (*store.Post, error)
	ListAllPostsForIndexing() ([]store.PostText, error)
	SetEmbedding(id int64, embedding []float32) error
	ClearEmbedding(id int64) error
}

// EmbeddingService keeps each post's stored embedding consistent with its
// current text. Failures never corrupt a previously stored embedding and
// never propagate as errors; callers inspect the returned result.
type EmbeddingService struct {
	dbStore      EmbeddingStore
	embedder     PostEmbedder
	relatedCache *cache.RelatedPostsCache // nil when caching is disabled
}

func NewEmbeddingService(db EmbeddingStore, embedder PostEmbedder, relatedCache *cache.RelatedPostsCache) *EmbeddingService {
	return &EmbeddingService{
		dbStore:      db,
		embedder:     embedder,
		relatedCache: relatedCache,
	}
}

// IndexPost generates and stores the embedding for a single post. On any
// failure the post's previously stored embedding is left untouched.
func (s *EmbeddingService) IndexPost(ctx context.Context, postID int64) EmbeddingResult {
	post, err := s.dbStore.GetPostByID(postID)
	if err != nil {
		return EmbeddingResult{PostID: postID, Error: err.Error()}
	}
	if post == nil {
		return EmbeddingResult{PostID: postID, Error: "Post not found"}
	}

	embedding, err := s.embedder.GetPostEmbedding(ctx, post.Title, post.Content)
	if err != nil {
		return EmbeddingResult{PostID: postID, Error: err.Error()}
	}

	if err := s.dbStore.SetEmbedding(postID, embedding); err != nil {
		return EmbeddingResult{PostID: postID, Error: err.Error()}
	}

	s.relatedCache.Invalidate(ctx, postID)
	return EmbeddingResult{PostID: postID, Success: true}
}

// BulkIndexPosts re-embeds every post sequentially, pacing requests to stay
// under provider rate limits. A single post's failure does not abort the
// run; the loop always completes all posts. The returned error is only set
// when the post listing itself cannot be loaded.
func (s *EmbeddingService) BulkIndexPosts(ctx context.Context) (BulkEmbeddingResult, error) {
	posts, err := s.dbStore.ListAllPostsForIndexing()
	if err != nil {
		return BulkEmbeddingResult{}, err
	}

	result := BulkEmbeddingResult{
		JobID:   uuid.NewString(),
		Total:   len(posts),
		Results: make([]EmbeddingResult, 0, len(posts)),
	}
	log.Printf("Bulk embedding job %s started for %d posts.", result.JobID, result.Total)

	for i, post := range posts {
		if i > 0 {
			time.Sleep(bulkIndexDelay)
		}

		itemResult := s.IndexPost(ctx, post.ID)
		if itemResult.Success {
			result.Succeeded++
		} else {
			result.Failed++
			log.Printf("Bulk embedding job %s: post %d failed: %s", result.JobID, post.ID, itemResult.Error)
		}
		result.Results = append(result.Results, itemResult)
	}

	log.Printf("Bulk embedding job %s finished: %d/%d succeeded, %d failed.", result.JobID, result.Succeeded, result.Total, result.Failed)
	return result, nil
}

// DeletePostEmbedding clears the post's stored embedding. It reports success
// as a boolean and never raises; persistence failures are logged.
func (s *EmbeddingService) DeletePostEmbedding(ctx context.Context, postID int64) bool {
	if err := s.dbStore.ClearEmbedding(postID); err != nil {
		log.Printf("Failed to clear embedding for post %d: %v", postID, err)
		return false
	}
	s.relatedCache.Invalidate(ctx, postID)
	return true
}
