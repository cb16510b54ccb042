package store

import "time"

const (
	StateDraft     = "draft"
	StatePublished = "published"
)

type Post struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Locale    string    `json:"locale"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Embedding []float32 `json:"-"` // Internal, not part of API responses
}

// PostText is the slice of a post that feeds the embedding model.
type PostText struct {
	ID      int64
	Title   string
	Content string
}

// Neighbor is one row of a nearest-neighbor query. Distance is the cosine
// distance to the query vector; rows are returned in ascending order.
type Neighbor struct {
	ID       int64
	Slug     string
	Title    string
	Distance float64
}
