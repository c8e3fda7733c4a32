package workflow

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillstone/agentrun/types"
)

// InMemoryContentStore keeps articles in process memory. It backs
// single-node deployments and doubles as the default SearchIndex; a CMS
// integration replaces it behind the same two interfaces.
type InMemoryContentStore struct {
	mu       sync.RWMutex
	articles map[string]Article
	now      func() time.Time
}

// NewInMemoryContentStore creates an empty content store.
func NewInMemoryContentStore() *InMemoryContentStore {
	return &InMemoryContentStore{
		articles: make(map[string]Article),
		now:      time.Now,
	}
}

var (
	_ ContentStore = (*InMemoryContentStore)(nil)
	_ SearchIndex  = (*InMemoryContentStore)(nil)
)

// CreateDraft stores a new draft and assigns its ID.
func (s *InMemoryContentStore) CreateDraft(ctx context.Context, article Article) (Article, error) {
	if article.Topic == "" {
		return Article{}, types.NewError(types.ErrInvalidRequest, "article topic is required")
	}

	article.ID = "art-" + uuid.NewString()
	article.Status = ArticleDraft
	article.UpdatedAt = s.now()

	s.mu.Lock()
	s.articles[article.ID] = article
	s.mu.Unlock()
	return article, nil
}

// Get returns the article by ID.
func (s *InMemoryContentStore) Get(ctx context.Context, id string) (Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return Article{}, types.NewErrorf(types.ErrNotFound, "article %s not found", id)
	}
	return a, nil
}

// SetStatus moves the article to the given lifecycle state.
func (s *InMemoryContentStore) SetStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "article %s not found", id)
	}
	a.Status = status
	a.UpdatedAt = s.now()
	s.articles[id] = a
	return nil
}

// Publish marks the article published.
func (s *InMemoryContentStore) Publish(ctx context.Context, id string) error {
	return s.SetStatus(ctx, id, ArticlePublished)
}

// Search returns published articles in the topic whose title or body
// matches the query, newest first. An empty query matches everything in
// the topic.
func (s *InMemoryContentStore) Search(ctx context.Context, topic, query string, limit int) ([]Article, error) {
	needle := strings.ToLower(query)

	s.mu.RLock()
	var out []Article
	for _, a := range s.articles {
		if a.Topic != topic || a.Status != ArticlePublished {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(a.Title), needle) &&
			!strings.Contains(strings.ToLower(a.Body), needle) {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
