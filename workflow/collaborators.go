package workflow

import (
	"context"
	"time"
)

// Article is a piece of content moving through the draft/publish lifecycle.
type Article struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	AuthorID  string    `json:"author_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Article lifecycle states.
const (
	ArticleDraft          = "draft"
	ArticlePendingReview  = "pending_review"
	ArticlePublished      = "published"
)

// ContentStore is the persistence boundary for articles. The workflow
// engine drives drafts through it and the approval coordinator finalizes
// them on resume.
type ContentStore interface {
	CreateDraft(ctx context.Context, article Article) (Article, error)
	Get(ctx context.Context, id string) (Article, error)
	SetStatus(ctx context.Context, id, status string) error
	Publish(ctx context.Context, id string) error
}

// SearchIndex answers content lookups for the generation and navigation
// handlers.
type SearchIndex interface {
	Search(ctx context.Context, topic, query string, limit int) ([]Article, error)
}
