package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanlog/hanlog/internal/store"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Hello World", "hello-world"},
		{"  Spaces   everywhere  ", "spaces-everywhere"},
		{"Go 1.24 릴리스 노트", "go-1-24-릴리스-노트"},
		{"!!!", ""},
		{"UPPER case", "upper-case"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.title), "title %q", tt.title)
	}
}

func newPostServiceForTest(t *testing.T) (*PostService, *store.SQLiteStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	embedSvc := NewEmbeddingService(db, fixedEmbedder([]float32{0.3, 0.7}), nil)
	return NewPostService(db, embedSvc), db
}

func TestCreatePostTriggersDetachedIndexing(t *testing.T) {
	svc, db := newPostServiceForTest(t)

	post, err := svc.CreatePost("My First Post", "Some content", "ko", store.StatePublished)
	require.NoError(t, err)
	assert.Equal(t, "my-first-post", post.Slug)

	// Indexing runs in the background; the create itself never waits on it.
	assert.Eventually(t, func() bool {
		loaded, err := db.GetPostByID(post.ID)
		return err == nil && loaded != nil && len(loaded.Embedding) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreatePostSlugCollision(t *testing.T) {
	svc, _ := newPostServiceForTest(t)

	first, err := svc.CreatePost("Same Title", "a", "ko", store.StateDraft)
	require.NoError(t, err)
	second, err := svc.CreatePost("Same Title", "b", "ko", store.StateDraft)
	require.NoError(t, err)

	assert.Equal(t, "same-title", first.Slug)
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.Contains(t, second.Slug, "same-title-")
}

func TestCreatePostInvalidState(t *testing.T) {
	svc, _ := newPostServiceForTest(t)

	_, err := svc.CreatePost("Title", "content", "ko", "archived")
	assert.Error(t, err)
}

func TestDeletePostRemovesRowAndEmbedding(t *testing.T) {
	svc, db := newPostServiceForTest(t)

	post, err := svc.CreatePost("Doomed Post", "content", "ko", store.StatePublished)
	require.NoError(t, err)
	require.NoError(t, db.SetEmbedding(post.ID, []float32{1, 2}))

	require.NoError(t, svc.DeletePost(post.ID))

	gone, err := db.GetPostByID(post.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
