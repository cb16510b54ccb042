package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanlog/hanlog/internal/auth"
	"github.com/hanlog/hanlog/internal/config"
	"github.com/hanlog/hanlog/internal/core"
	"github.com/hanlog/hanlog/internal/store"
)

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) GetPostEmbedding(ctx context.Context, title, content string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.9}, nil
}

type stubAssistant struct{}

func (stubAssistant) GenerateSummary(ctx context.Context, title, content string) (string, error) {
	return "A short summary.", nil
}

func (stubAssistant) SuggestSlug(ctx context.Context, title string) (string, error) {
	return "suggested-slug", nil
}

func (stubAssistant) Translate(ctx context.Context, text, targetLocale string) (string, error) {
	return "translated", nil
}

type testEnv struct {
	server   *httptest.Server
	db       *store.SQLiteStore
	embedder *stubEmbedder
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	passwordHash, err := auth.HashPassword("secret")
	require.NoError(t, err)

	cfg := config.Config{
		JWTSecret:         "test-jwt-secret",
		AdminUser:         "admin",
		AdminPasswordHash: passwordHash,
	}

	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	embedder := &stubEmbedder{}
	embeddingService := core.NewEmbeddingService(db, embedder, nil)
	similarityService := core.NewSimilarityService(db, nil)
	postService := core.NewPostService(db, embeddingService)

	handler := NewAPIHandler(cfg, postService, embeddingService, similarityService, stubAssistant{})
	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)

	token, err := auth.GenerateJWT("admin", cfg.JWTSecret)
	require.NoError(t, err)

	return &testEnv{server: server, db: db, embedder: embedder, token: token}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "admin", Password: "secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["token"])
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/admin/posts", "", PostRequest{Title: "t", Content: "c"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/admin/posts", "not-a-token", PostRequest{Title: "t", Content: "c"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndReadPost(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/admin/posts", env.token, PostRequest{
		Title:   "Hello World",
		Content: "First post content",
		Locale:  "ko",
		State:   store.StatePublished,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created store.Post
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "hello-world", created.Slug)

	resp = env.request(t, http.MethodGet, "/api/posts/hello-world", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page PostResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, created.ID, page.ID)
	// No other published posts exist, so the related section is empty, not null.
	assert.NotNil(t, page.RelatedPosts)
	assert.Empty(t, page.RelatedPosts)
}

func TestUpdatePost(t *testing.T) {
	env := newTestEnv(t)

	post := &store.Post{Slug: "updatable", Title: "Old", Content: "old", Locale: "en", State: store.StatePublished}
	require.NoError(t, env.db.CreatePost(post))

	resp := env.request(t, http.MethodPut, fmt.Sprintf("/api/admin/posts/%d", post.ID), env.token, PostRequest{
		Title:   "New",
		Content: "new",
		Locale:  "en",
		State:   store.StatePublished,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	loaded, err := env.db.GetPostByID(post.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", loaded.Title)
	assert.Equal(t, "en", loaded.Locale)
}

func TestUpdatePostRejectsBlankLocaleAndState(t *testing.T) {
	env := newTestEnv(t)

	post := &store.Post{Slug: "strict", Title: "T", Content: "c", Locale: "en", State: store.StatePublished}
	require.NoError(t, env.db.CreatePost(post))

	// Omitting the locale must not blank it out of its similarity partition.
	resp := env.request(t, http.MethodPut, fmt.Sprintf("/api/admin/posts/%d", post.ID), env.token, PostRequest{
		Title:   "T",
		Content: "c",
		State:   store.StatePublished,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A missing state is a bad request, not a server error.
	resp = env.request(t, http.MethodPut, fmt.Sprintf("/api/admin/posts/%d", post.ID), env.token, PostRequest{
		Title:   "T",
		Content: "c",
		Locale:  "en",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	loaded, err := env.db.GetPostByID(post.ID)
	require.NoError(t, err)
	assert.Equal(t, "en", loaded.Locale)
	assert.Equal(t, store.StatePublished, loaded.State)
}

func TestUpdateAndDeleteMissingPost(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPut, "/api/admin/posts/99999", env.token, PostRequest{
		Title:   "T",
		Content: "c",
		Locale:  "ko",
		State:   store.StateDraft,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, "/api/admin/posts/99999", env.token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDraftsAreNotPublic(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/admin/posts", env.token, PostRequest{
		Title:   "Secret Draft",
		Content: "wip",
		State:   store.StateDraft,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/posts/secret-draft", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReembedPost(t *testing.T) {
	env := newTestEnv(t)

	post := &store.Post{Slug: "reembed-me", Title: "Re-embed", Content: "content", Locale: "ko", State: store.StatePublished}
	require.NoError(t, env.db.CreatePost(post))

	resp := env.request(t, http.MethodPost, fmt.Sprintf("/api/admin/posts/%d/embed", post.ID), env.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result core.EmbeddingResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)

	loaded, err := env.db.GetPostByID(post.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.9}, loaded.Embedding)
}

func TestReembedMissingPost(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/admin/posts/99999/embed", env.token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var result core.EmbeddingResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.False(t, result.Success)
	assert.Equal(t, "Post not found", result.Error)
}

func TestReembedProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.err = errors.New("provider down")

	post := &store.Post{Slug: "wont-embed", Title: "t", Content: "c", Locale: "ko", State: store.StatePublished}
	require.NoError(t, env.db.CreatePost(post))

	resp := env.request(t, http.MethodPost, fmt.Sprintf("/api/admin/posts/%d/embed", post.ID), env.token, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var result core.EmbeddingResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.False(t, result.Success)
	assert.Equal(t, "provider down", result.Error)
}

func TestDeleteEmbedding(t *testing.T) {
	env := newTestEnv(t)

	post := &store.Post{Slug: "has-embedding", Title: "t", Content: "c", Locale: "ko", State: store.StatePublished}
	require.NoError(t, env.db.CreatePost(post))
	require.NoError(t, env.db.SetEmbedding(post.ID, []float32{1}))

	resp := env.request(t, http.MethodDelete, fmt.Sprintf("/api/admin/posts/%d/embedding", post.ID), env.token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	loaded, err := env.db.GetPostByID(post.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.Embedding)
}

func TestBulkEmbed(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		post := &store.Post{Slug: fmt.Sprintf("bulk-%d", i), Title: "t", Content: "c", Locale: "ko", State: store.StatePublished}
		require.NoError(t, env.db.CreatePost(post))
	}

	start := time.Now()
	resp := env.request(t, http.MethodPost, "/api/admin/embeddings/bulk", env.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result core.BulkEmbeddingResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Results, 3)
	// Inter-item pacing: two 200ms gaps for three posts.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestRelatedPostsOnPostPage(t *testing.T) {
	env := newTestEnv(t)

	mk := func(slug, locale string, embedding []float32) *store.Post {
		post := &store.Post{Slug: slug, Title: slug, Content: "c", Locale: locale, State: store.StatePublished}
		require.NoError(t, env.db.CreatePost(post))
		require.NoError(t, env.db.SetEmbedding(post.ID, embedding))
		return post
	}

	subject := mk("subject", "ko", []float32{1, 0})
	neighbor := mk("neighbor", "ko", []float32{0.9, 0.1})
	mk("other-locale", "en", []float32{1, 0})

	resp := env.request(t, http.MethodGet, "/api/posts/subject?related=4", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page PostResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))

	require.Len(t, page.RelatedPosts, 1)
	assert.Equal(t, neighbor.ID, page.RelatedPosts[0].ID)
	assert.NotEqual(t, subject.ID, page.RelatedPosts[0].ID)
}

func TestAIAssistEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/admin/ai/summary", env.token, SummaryRequest{Title: "t", Content: "long content"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, "A short summary.", summary["summary"])

	resp = env.request(t, http.MethodPost, "/api/admin/ai/slug", env.token, SlugRequest{Title: "Some Title"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/admin/ai/translate", env.token, TranslateRequest{Text: "안녕", TargetLocale: "en"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
