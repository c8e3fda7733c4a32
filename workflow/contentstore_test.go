package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstone/agentrun/types"
)

func TestInMemoryContentStore_Lifecycle(t *testing.T) {
	store := NewInMemoryContentStore()
	ctx := context.Background()

	draft, err := store.CreateDraft(ctx, Article{Topic: "macro", Title: "Rates outlook"})
	require.NoError(t, err)
	assert.NotEmpty(t, draft.ID)
	assert.Equal(t, ArticleDraft, draft.Status)

	require.NoError(t, store.SetStatus(ctx, draft.ID, ArticlePendingReview))
	got, err := store.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, ArticlePendingReview, got.Status)

	require.NoError(t, store.Publish(ctx, draft.ID))
	got, err = store.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, ArticlePublished, got.Status)
}

func TestInMemoryContentStore_Validation(t *testing.T) {
	store := NewInMemoryContentStore()
	ctx := context.Background()

	_, err := store.CreateDraft(ctx, Article{})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = store.Get(ctx, "art-missing")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(store.SetStatus(ctx, "art-missing", ArticleDraft)))
}

func TestInMemoryContentStore_SearchMatchesPublishedOnly(t *testing.T) {
	store := NewInMemoryContentStore()
	ctx := context.Background()

	published, err := store.CreateDraft(ctx, Article{Topic: "macro", Title: "Rates outlook", Body: "hiking cycle"})
	require.NoError(t, err)
	require.NoError(t, store.Publish(ctx, published.ID))

	_, err = store.CreateDraft(ctx, Article{Topic: "macro", Title: "Rates draft"})
	require.NoError(t, err)
	other, err := store.CreateDraft(ctx, Article{Topic: "equities", Title: "Rates and stocks"})
	require.NoError(t, err)
	require.NoError(t, store.Publish(ctx, other.ID))

	results, err := store.Search(ctx, "macro", "rates", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, published.ID, results[0].ID)

	// Empty query matches the whole topic.
	results, err = store.Search(ctx, "macro", "", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = store.Search(ctx, "macro", "nonexistent", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
