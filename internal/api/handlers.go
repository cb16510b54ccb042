package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanlog/hanlog/internal/auth"
	"github.com/hanlog/hanlog/internal/config"
	"github.com/hanlog/hanlog/internal/core"
	"github.com/hanlog/hanlog/internal/store"
)

const (
	defaultRelatedLimit = 4
	maxRelatedLimit     = 10
)

// TextAssistant is the slice of the LLM service the admin AI endpoints use.
type TextAssistant interface {
	GenerateSummary(ctx context.Context, title, content string) (string, error)
	SuggestSlug(ctx context.Context, title string) (string, error)
	Translate(ctx context.Context, text, targetLocale string) (string, error)
}

type APIHandler struct {
	cfg               config.Config
	postService       *core.PostService
	embeddingService  *core.EmbeddingService
	similarityService *core.SimilarityService
	assistant         TextAssistant
}

func NewAPIHandler(cfg config.Config, ps *core.PostService, es *core.EmbeddingService, ss *core.SimilarityService, assistant TextAssistant) *APIHandler {
	return &APIHandler{
		cfg:               cfg,
		postService:       ps,
		embeddingService:  es,
		similarityService: ss,
		assistant:         assistant,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		user, err := auth.ValidateJWT(tokenString, h.cfg.JWTSecret)
		if err != nil || user != h.cfg.AdminUser {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if h.cfg.AdminPasswordHash == "" {
		http.Error(w, "Admin login is disabled", http.StatusForbidden)
		return
	}

	if req.Username != h.cfg.AdminUser || !auth.CheckPasswordHash(req.Password, h.cfg.AdminPasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.Username, h.cfg.JWTSecret)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.Username, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

type PostResponse struct {
	*store.Post
	RelatedPosts []core.RelatedPost `json:"related_posts"`
}

// GetPostHandler serves the public post page by slug. Related posts are
// best-effort and an empty list is a normal response.
func (h *APIHandler) GetPostHandler(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	post, err := h.postService.GetPostBySlug(slug)
	if err != nil {
		log.Printf("Error getting post %s: %v", slug, err)
		http.Error(w, "Failed to get post", http.StatusInternalServerError)
		return
	}
	if post == nil || post.State != store.StatePublished {
		http.Error(w, "Post not found", http.StatusNotFound)
		return
	}

	limit := defaultRelatedLimit
	if v := r.URL.Query().Get("related"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}
	if limit > maxRelatedLimit {
		limit = maxRelatedLimit
	}

	resp := PostResponse{
		Post:         post,
		RelatedPosts: h.similarityService.FindSimilarPosts(r.Context(), post.ID, post.Locale, limit),
	}
	json.NewEncoder(w).Encode(resp)
}

type PostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Locale  string `json:"locale"`
	State   string `json:"state"`
}

func (h *APIHandler) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Content == "" {
		http.Error(w, "Title and content are required", http.StatusBadRequest)
		return
	}
	if req.Locale == "" {
		req.Locale = "ko"
	}

	post, err := h.postService.CreatePost(req.Title, req.Content, req.Locale, req.State)
	if err != nil {
		log.Printf("Error creating post: %v", err)
		http.Error(w, "Failed to create post", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(post)
}

func (h *APIHandler) UpdatePostHandler(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postIDParam(w, r)
	if !ok {
		return
	}

	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Content == "" {
		http.Error(w, "Title and content are required", http.StatusBadRequest)
		return
	}
	// An update replaces the whole post, so a blank locale or state would
	// silently drop the post from its similarity partition or its draft/
	// published status. Reject rather than guess.
	if req.Locale == "" {
		http.Error(w, "Locale is required", http.StatusBadRequest)
		return
	}
	if req.State != store.StateDraft && req.State != store.StatePublished {
		http.Error(w, "State must be 'draft' or 'published'", http.StatusBadRequest)
		return
	}

	post, err := h.postService.UpdatePost(postID, req.Title, req.Content, req.Locale, req.State)
	if err != nil {
		if errors.Is(err, store.ErrPostNotFound) {
			http.Error(w, "Post not found", http.StatusNotFound)
		} else {
			log.Printf("Error updating post %d: %v", postID, err)
			http.Error(w, "Failed to update post", http.StatusInternalServerError)
		}
		return
	}
	json.NewEncoder(w).Encode(post)
}

func (h *APIHandler) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postIDParam(w, r)
	if !ok {
		return
	}

	if err := h.postService.DeletePost(postID); err != nil {
		if errors.Is(err, store.ErrPostNotFound) {
			http.Error(w, "Post not found", http.StatusNotFound)
		} else {
			log.Printf("Error deleting post %d: %v", postID, err)
			http.Error(w, "Failed to delete post", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReembedPostHandler is the admin "re-embed" action: unlike the detached
// trigger after create/update, this one is awaited and reports failure.
func (h *APIHandler) ReembedPostHandler(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postIDParam(w, r)
	if !ok {
		return
	}

	result := h.embeddingService.IndexPost(r.Context(), postID)
	if !result.Success {
		if result.Error == "Post not found" {
			w.WriteHeader(http.StatusNotFound)
		} else {
			log.Printf("Manual re-embed failed for post %d: %s", postID, result.Error)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
	json.NewEncoder(w).Encode(result)
}

func (h *APIHandler) DeleteEmbeddingHandler(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postIDParam(w, r)
	if !ok {
		return
	}

	if !h.embeddingService.DeletePostEmbedding(r.Context(), postID) {
		http.Error(w, "Failed to delete embedding", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkEmbedHandler runs the full re-embedding job. The job gets a background
// context: once started it runs to completion even if the admin connection
// drops.
func (h *APIHandler) BulkEmbedHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.embeddingService.BulkIndexPosts(context.Background())
	if err != nil {
		log.Printf("Bulk embedding failed to start: %v", err)
		http.Error(w, "Failed to load posts for bulk embedding", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}

type SummaryRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *APIHandler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Content is required", http.StatusBadRequest)
		return
	}

	summary, err := h.assistant.GenerateSummary(r.Context(), req.Title, req.Content)
	if err != nil {
		log.Printf("Error generating summary: %v", err)
		http.Error(w, "Failed to generate summary", http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"summary": summary})
}

type SlugRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) SlugHandler(w http.ResponseWriter, r *http.Request) {
	var req SlugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	slug, err := h.assistant.SuggestSlug(r.Context(), req.Title)
	if err != nil {
		log.Printf("Error suggesting slug: %v", err)
		http.Error(w, "Failed to suggest slug", http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"slug": slug})
}

type TranslateRequest struct {
	Text         string `json:"text"`
	TargetLocale string `json:"target_locale"`
}

func (h *APIHandler) TranslateHandler(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" || req.TargetLocale == "" {
		http.Error(w, "Text and target_locale are required", http.StatusBadRequest)
		return
	}

	translation, err := h.assistant.Translate(r.Context(), req.Text, req.TargetLocale)
	if err != nil {
		log.Printf("Error translating text: %v", err)
		http.Error(w, "Failed to translate", http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"translation": translation})
}

func (h *APIHandler) postIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	postID, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid post id", http.StatusBadRequest)
		return 0, false
	}
	return postID, true
}
