package core

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hanlog/hanlog/internal/store"
)

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9\p{Hangul}]+`)

// PostService orchestrates post CRUD and keeps the embedding pipeline in
// step with post mutations. Indexing after create/update is fire-and-forget:
// the write path never waits on, or fails because of, embedding work.
type PostService struct {
	dbStore  *store.SQLiteStore
	embedSvc *EmbeddingService
}

func NewPostService(db *store.SQLiteStore, embedSvc *EmbeddingService) *PostService {
	return &PostService{
		dbStore:  db,
		embedSvc: embedSvc,
	}
}

func (s *PostService) CreatePost(title, content, locale, state string) (*store.Post, error) {
	if state == "" {
		state = store.StateDraft
	}
	if state != store.StateDraft && state != store.StatePublished {
		return nil, fmt.Errorf("invalid post state: %s", state)
	}

	slug, err := s.uniqueSlug(title)
	if err != nil {
		return nil, err
	}

	post := &store.Post{
		Slug:    slug,
		Title:   title,
		Content: content,
		Locale:  locale,
		State:   state,
	}
	if err := s.dbStore.CreatePost(post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	go s.indexDetached(post.ID)
	return post, nil
}

func (s *PostService) UpdatePost(id int64, title, content, locale, state string) (*store.Post, error) {
	if state != store.StateDraft && state != store.StatePublished {
		return nil, fmt.Errorf("invalid post state: %s", state)
	}

	if err := s.dbStore.UpdatePost(id, title, content, locale, state); err != nil {
		return nil, err
	}

	go s.indexDetached(id)
	return s.dbStore.GetPostByID(id)
}

// DeletePost clears the post's embedding, then removes the post row. A
// failed embedding clear is logged but does not block the delete; the row
// removal takes the column with it.
func (s *PostService) DeletePost(id int64) error {
	s.embedSvc.DeletePostEmbedding(context.Background(), id)
	return s.dbStore.DeletePost(id)
}

func (s *PostService) GetPostByID(id int64) (*store.Post, error) {
	return s.dbStore.GetPostByID(id)
}

func (s *PostService) GetPostBySlug(slug string) (*store.Post, error) {
	return s.dbStore.GetPostBySlug(slug)
}

// indexDetached runs in its own goroutine with a background context so the
// triggering HTTP request can complete independently. Failures only degrade
// the related-posts feature, so logging is the whole error policy here.
func (s *PostService) indexDetached(postID int64) {
	result := s.embedSvc.IndexPost(context.Background(), postID)
	if !result.Success {
		log.Printf("Background indexing failed for post %d: %s", postID, result.Error)
	}
}

// uniqueSlug derives a slug from the title, appending a short random suffix
// when the plain slug is already taken.
func (s *PostService) uniqueSlug(title string) (string, error) {
	slug := Slugify(title)
	if slug == "" {
		slug = "post"
	}

	existing, err := s.dbStore.GetPostBySlug(slug)
	if err != nil {
		return "", fmt.Errorf("failed to check slug availability: %w", err)
	}
	if existing == nil {
		return slug, nil
	}
	return fmt.Sprintf("%s-%s", slug, uuid.NewString()[:8]), nil
}

// Slugify lowercases the title and collapses anything that is not a letter,
// digit or Hangul into single hyphens.
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugInvalidChars.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
