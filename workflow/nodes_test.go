package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstone/agentrun/classify"
	"github.com/quillstone/agentrun/types"
)

type fakeContentStore struct {
	mu       sync.Mutex
	articles map[string]Article
	seq      int
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{articles: make(map[string]Article)}
}

func (s *fakeContentStore) CreateDraft(ctx context.Context, article Article) (Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	article.ID = fmt.Sprintf("art-%d", s.seq)
	article.Status = ArticleDraft
	s.articles[article.ID] = article
	return article, nil
}

func (s *fakeContentStore) Get(ctx context.Context, id string) (Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return Article{}, types.NewErrorf(types.ErrNotFound, "article %s not found", id)
	}
	return a, nil
}

func (s *fakeContentStore) SetStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "article %s not found", id)
	}
	a.Status = status
	s.articles[id] = a
	return nil
}

func (s *fakeContentStore) Publish(ctx context.Context, id string) error {
	return s.SetStatus(ctx, id, ArticlePublished)
}

func (s *fakeContentStore) status(t *testing.T, id string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	require.True(t, ok, "article %s", id)
	return a.Status
}

type fakeSearchIndex struct {
	results []Article
	err     error
}

func (s *fakeSearchIndex) Search(ctx context.Context, topic, query string, limit int) ([]Article, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > limit {
		return s.results[:limit], nil
	}
	return s.results, nil
}

func stubClassifier(intent classify.Intent, err error) classify.Classifier {
	return classify.Func(func(ctx context.Context, message string, nav *types.NavigationContext, history []types.Message) (classify.Intent, error) {
		return intent, err
	})
}

func testGraph(t *testing.T, classifier classify.Classifier, content *fakeContentStore, search SearchIndex) *Engine {
	t.Helper()
	e, err := NewContentGraph(GraphDeps{
		Classifier: classifier,
		Content:    content,
		Search:     search,
	})
	require.NoError(t, err)
	return e
}

func TestContentGraph_ClassifierFailureFallsBackToGeneralChat(t *testing.T) {
	content := newFakeContentStore()
	boom := types.NewError(types.ErrClassifierUnavailable, "classifier timed out")
	e := testGraph(t, stubClassifier(classify.Intent{}, boom), content, nil)

	state := testState(t, "hello there", "macro:reader")
	outcome, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	assert.False(t, outcome.Suspended())
	assert.Equal(t, NodeGeneralChat, state.Handler)
	assert.Equal(t, "classifier_unavailable", state.RoutingReason)
	assert.NotEmpty(t, state.ResponseText)
}

func TestContentGraph_NavigationProducesDirective(t *testing.T) {
	content := newFakeContentStore()
	e := testGraph(t, stubClassifier(classify.Intent{
		Category: classify.CategoryNavigation,
		Topic:    "macro",
		TargetID: "macro-dashboard",
	}, nil), content, nil)

	state := testState(t, "take me to the macro dashboard", "macro:reader")
	_, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, state.UIDirective)
	assert.Equal(t, "navigate", state.UIDirective.Action)
	assert.Equal(t, "macro-dashboard", state.UIDirective.Target)
}

func TestContentGraph_DraftingRequiresAnalyst(t *testing.T) {
	content := newFakeContentStore()
	intent := classify.Intent{Category: classify.CategoryContentGeneration, Topic: "macro"}

	e := testGraph(t, stubClassifier(intent, nil), content, nil)
	state := testState(t, "write a note on rates", "macro:editor")
	_, err := e.Run(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, types.ErrPermissionDenied, types.GetErrorCode(err))

	state = testState(t, "write a note on rates", "macro:analyst")
	_, err = e.Run(context.Background(), state)
	require.NoError(t, err)
	assert.NotEmpty(t, state.PendingArticleID)
	assert.Equal(t, ArticleDraft, content.status(t, state.PendingArticleID))
}

func TestContentGraph_DraftingAttachesRelatedContent(t *testing.T) {
	content := newFakeContentStore()
	search := &fakeSearchIndex{results: []Article{{ID: "art-old"}}}
	intent := classify.Intent{Category: classify.CategoryContentGeneration, Topic: "macro"}
	e := testGraph(t, stubClassifier(intent, nil), content, search)

	state := testState(t, "write a note on rates", "macro:analyst")
	_, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Contains(t, state.Entities, "art-old")
}

func TestContentGraph_SearchFailureDoesNotBlockDrafting(t *testing.T) {
	content := newFakeContentStore()
	search := &fakeSearchIndex{err: types.NewError(types.ErrInternalError, "index down")}
	intent := classify.Intent{Category: classify.CategoryContentGeneration, Topic: "macro"}
	e := testGraph(t, stubClassifier(intent, nil), content, search)

	state := testState(t, "write a note on rates", "macro:analyst")
	_, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	assert.NotEmpty(t, state.PendingArticleID)
}

func TestContentGraph_PublishRequiresEditor(t *testing.T) {
	content := newFakeContentStore()
	draft, err := content.CreateDraft(context.Background(), Article{Topic: "macro"})
	require.NoError(t, err)

	intent := classify.Intent{Category: classify.CategoryEditorWorkflow, Topic: "macro", TargetID: draft.ID}

	// An analyst may draft but never publish.
	e := testGraph(t, stubClassifier(intent, nil), content, nil)
	state := testState(t, "publish it", "macro:analyst")
	_, err = e.Run(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, types.ErrPermissionDenied, types.GetErrorCode(err))
	assert.Equal(t, ArticleDraft, content.status(t, draft.ID))
}

func TestContentGraph_PublishSuspendsForApproval(t *testing.T) {
	content := newFakeContentStore()
	draft, err := content.CreateDraft(context.Background(), Article{Topic: "macro"})
	require.NoError(t, err)

	intent := classify.Intent{Category: classify.CategoryEditorWorkflow, Topic: "macro", TargetID: draft.ID}
	e := testGraph(t, stubClassifier(intent, nil), content, nil)

	state := testState(t, "publish it", "macro:editor")
	outcome, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	require.True(t, outcome.Suspended())
	assert.Equal(t, NodeEditorWorkflow, outcome.Suspension.Node)
	assert.Equal(t, draft.ID, outcome.Suspension.ArticleID)
	assert.Equal(t, "macro", outcome.Suspension.Topic)
	// Staged, not published: the node never publishes directly.
	assert.Equal(t, ArticlePendingReview, content.status(t, draft.ID))
}

func TestContentGraph_ResumeApprovePublishes(t *testing.T) {
	content := newFakeContentStore()
	draft, err := content.CreateDraft(context.Background(), Article{Topic: "macro"})
	require.NoError(t, err)

	intent := classify.Intent{Category: classify.CategoryEditorWorkflow, Topic: "macro", TargetID: draft.ID}
	e := testGraph(t, stubClassifier(intent, nil), content, nil)

	state := testState(t, "publish it", "macro:editor")
	outcome, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	require.True(t, outcome.Suspended())

	next, ok := e.Successor(outcome.Suspension.Node)
	require.True(t, ok)
	state.ResumeDecision = DecisionApprove
	resumed, err := e.RunFrom(context.Background(), state, next)
	require.NoError(t, err)
	assert.False(t, resumed.Suspended())
	assert.Equal(t, ArticlePublished, content.status(t, draft.ID))
	assert.Contains(t, state.ResponseText, "published")
}

func TestContentGraph_ResumeRejectRevertsToDraft(t *testing.T) {
	content := newFakeContentStore()
	draft, err := content.CreateDraft(context.Background(), Article{Topic: "macro"})
	require.NoError(t, err)

	intent := classify.Intent{Category: classify.CategoryEditorWorkflow, Topic: "macro", TargetID: draft.ID}
	e := testGraph(t, stubClassifier(intent, nil), content, nil)

	state := testState(t, "publish it", "macro:editor")
	outcome, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	require.True(t, outcome.Suspended())

	next, _ := e.Successor(outcome.Suspension.Node)
	state.ResumeDecision = DecisionReject
	_, err = e.RunFrom(context.Background(), state, next)
	require.NoError(t, err)
	assert.Equal(t, ArticleDraft, content.status(t, draft.ID))
	assert.Contains(t, state.ResponseText, "rejected")
}

func TestContentGraph_PublishUnknownArticle(t *testing.T) {
	content := newFakeContentStore()
	intent := classify.Intent{Category: classify.CategoryEditorWorkflow, Topic: "macro", TargetID: "art-missing"}
	e := testGraph(t, stubClassifier(intent, nil), content, nil)

	state := testState(t, "publish it", "macro:editor")
	_, err := e.Run(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestContentGraph_EntitlementsListsOwnAccess(t *testing.T) {
	content := newFakeContentStore()
	intent := classify.Intent{Category: classify.CategoryEntitlements}
	e := testGraph(t, stubClassifier(intent, nil), content, nil)

	state := testState(t, "what can I access?", "macro:analyst", "equities:reader")
	_, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Contains(t, state.ResponseText, "macro: analyst")
	assert.Contains(t, state.ResponseText, "equities: reader")
}

func TestContentGraph_ResponseBuilderAppendsAssistantTurn(t *testing.T) {
	content := newFakeContentStore()
	intent := classify.Intent{Category: classify.CategoryGeneralChat}
	e := testGraph(t, stubClassifier(intent, nil), content, nil)

	state := testState(t, "hello", "macro:reader")
	_, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, types.RoleAssistant, last.Role)
	assert.Equal(t, state.ResponseText, last.Content)
}
