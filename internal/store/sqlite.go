package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/hanlog/hanlog/internal/utils"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrPostNotFound reports a write against a post id that does not exist.
var ErrPostNotFound = errors.New("post not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dataSourceName, ":memory:") || strings.Contains(dataSourceName, "mode=memory") {
		// Each pooled connection to a plain in-memory DSN gets its own
		// empty database; a single connection keeps every caller on the
		// same one.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS posts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        slug TEXT UNIQUE NOT NULL,
        title TEXT NOT NULL,
        content TEXT NOT NULL,
        locale TEXT NOT NULL DEFAULT 'ko',
        state TEXT NOT NULL DEFAULT 'draft' CHECK (state IN ('draft', 'published')),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        embedding_json TEXT -- Storing as JSON string of []float32, NULL until indexed
    );

    CREATE INDEX IF NOT EXISTS idx_posts_locale_state ON posts (locale, state);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Post CRUD

func (s *SQLiteStore) CreatePost(post *Post) error {
	stmt, err := s.db.Prepare("INSERT INTO posts (slug, title, content, locale, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare post insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(post.Slug, post.Title, post.Content, post.Locale, post.State, now, now)
	if err != nil {
		return fmt.Errorf("failed to execute post insert: %w", err)
	}
	post.ID, _ = res.LastInsertId()
	post.CreatedAt = now
	post.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetPostByID(id int64) (*Post, error) {
	return s.getPost("SELECT id, slug, title, content, locale, state, created_at, updated_at, embedding_json FROM posts WHERE id = ?", id)
}

func (s *SQLiteStore) GetPostBySlug(slug string) (*Post, error) {
	return s.getPost("SELECT id, slug, title, content, locale, state, created_at, updated_at, embedding_json FROM posts WHERE slug = ?", slug)
}

func (s *SQLiteStore) getPost(query string, arg any) (*Post, error) {
	var post Post
	var embeddingJSON sql.NullString
	err := s.db.QueryRow(query, arg).Scan(&post.ID, &post.Slug, &post.Title, &post.Content, &post.Locale, &post.State, &post.CreatedAt, &post.UpdatedAt, &embeddingJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Post not found
		}
		return nil, fmt.Errorf("failed to query post: %w", err)
	}
	post.Embedding = decodeEmbedding(post.ID, embeddingJSON)
	return &post, nil
}

func (s *SQLiteStore) UpdatePost(id int64, title, content, locale, state string) error {
	stmt, err := s.db.Prepare("UPDATE posts SET title = ?, content = ?, locale = ?, state = ?, updated_at = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare post update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(title, content, locale, state, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to execute post update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (s *SQLiteStore) DeletePost(id int64) error {
	res, err := s.db.Exec("DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrPostNotFound
	}
	return nil
}

// Embedding methods (used by the indexing pipeline)

// ListAllPostsForIndexing returns every post's id and text regardless of
// state or locale, in insertion order.
func (s *SQLiteStore) ListAllPostsForIndexing() ([]PostText, error) {
	rows, err := s.db.Query("SELECT id, title, content FROM posts ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query posts for indexing: %w", err)
	}
	defer rows.Close()

	var posts []PostText
	for rows.Next() {
		var p PostText
		if err := rows.Scan(&p.ID, &p.Title, &p.Content); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// SetEmbedding replaces the post's stored embedding in a single update.
// The previous value is untouched if the update fails.
func (s *SQLiteStore) SetEmbedding(id int64, embedding []float32) error {
	embeddingBytes, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	res, err := s.db.Exec("UPDATE posts SET embedding_json = ? WHERE id = ?", string(embeddingBytes), id)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (s *SQLiteStore) ClearEmbedding(id int64) error {
	res, err := s.db.Exec("UPDATE posts SET embedding_json = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to clear embedding: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrPostNotFound
	}
	return nil
}

// QueryNearestByVector returns up to limit published, same-locale posts
// (excluding excludeID) with created_at <= now and a stored embedding,
// ordered by ascending cosine distance to vec. Equal distances order by
// post id ascending.
//
// Candidates are filtered in SQL; distances are computed in-process. At blog
// scale (low thousands of posts) the linear scan is cheaper than maintaining
// a vector index.
func (s *SQLiteStore) QueryNearestByVector(excludeID int64, locale string, vec []float32, limit int) ([]Neighbor, error) {
	if limit <= 0 || len(vec) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT id, slug, title, created_at, embedding_json
         FROM posts
         WHERE state = 'published' AND locale = ? AND id != ? AND embedding_json IS NOT NULL`,
		locale, excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate posts: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		var createdAt time.Time
		var embeddingJSON sql.NullString
		if err := rows.Scan(&n.ID, &n.Slug, &n.Title, &createdAt, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		if createdAt.After(now) {
			continue // Scheduled posts are not visible yet
		}
		embedding := decodeEmbedding(n.ID, embeddingJSON)
		if len(embedding) == 0 {
			continue
		}
		distance, err := utils.CosineDistance(vec, embedding)
		if err != nil {
			log.Printf("Warning: skipping post %d in nearest-neighbor query: %v", n.ID, err)
			continue
		}
		n.Distance = distance
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidate rows: %w", err)
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].ID < neighbors[j].ID
	})
	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

func decodeEmbedding(postID int64, embeddingJSON sql.NullString) []float32 {
	if !embeddingJSON.Valid || embeddingJSON.String == "" {
		return nil
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(embeddingJSON.String), &embedding); err != nil {
		log.Printf("Warning: failed to unmarshal embedding for post %d: %v. Embedding will be empty.", postID, err)
		return nil
	}
	return embedding
}
