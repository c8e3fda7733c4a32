package checkpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstone/agentrun/auth"
	"github.com/quillstone/agentrun/types"
	"github.com/quillstone/agentrun/workflow"
)

func testCheckpoint(t *testing.T, threadID string) *Checkpoint {
	t.Helper()
	user, err := auth.NewUserContext("u-1", []string{"macro:editor"})
	require.NoError(t, err)
	history := []types.Message{
		{Role: types.RoleUser, Content: "show me the latest drafts"},
		{Role: types.RoleAssistant, Content: "here are the drafts"},
	}
	state := workflow.NewAgentState(threadID, user, nil, history, "publish it")
	state.PendingArticleID = "art-1"
	return &Checkpoint{
		ThreadID:   threadID,
		ApprovalID: "appr-1",
		State:      state,
		Suspension: &workflow.Suspension{
			Node:      workflow.NodeEditorWorkflow,
			Reason:    "publish_approval",
			ArticleID: "art-1",
			Topic:     "macro",
		},
		CreatedAt: time.Now(),
	}
}

func TestMemoryStore_PutAndClaim(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	cp := testCheckpoint(t, "thread-1")
	require.NoError(t, store.Put(ctx, cp, time.Hour))

	got, err := store.GetAndClaim(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", got.ThreadID)
	assert.Equal(t, "art-1", got.State.PendingArticleID)

	// The claim consumed it.
	_, err = store.GetAndClaim(ctx, "thread-1")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestMemoryStore_PutSnapshotsState(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	cp := testCheckpoint(t, "thread-1")
	require.NoError(t, store.Put(ctx, cp, time.Hour))

	// Mutations after Put must not reach the stored copy.
	cp.State.ResponseText = "changed later"
	cp.State.Messages = append(cp.State.Messages, types.Message{Role: types.RoleAssistant, Content: "extra"})

	got, err := store.GetAndClaim(ctx, "thread-1")
	require.NoError(t, err)
	assert.Empty(t, got.State.ResponseText)
	assert.Len(t, got.State.Messages, 3)
}

func TestMemoryStore_ExpiredIsNotClaimable(t *testing.T) {
	store := NewMemoryStore(nil)
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testCheckpoint(t, "thread-1"), time.Minute))

	current = current.Add(2 * time.Minute)
	_, err := store.GetAndClaim(ctx, "thread-1")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestMemoryStore_ConcurrentClaimsExactlyOneWins(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, testCheckpoint(t, "thread-1"), time.Hour))

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan *Checkpoint, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cp, err := store.GetAndClaim(ctx, "thread-1"); err == nil {
				wins <- cp
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testCheckpoint(t, "thread-1"), time.Hour))
	require.NoError(t, store.Delete(ctx, "thread-1"))

	_, err := store.GetAndClaim(ctx, "thread-1")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestMemoryStore_PutValidation(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	assert.Error(t, store.Put(ctx, nil, time.Hour))
	assert.Error(t, store.Put(ctx, &Checkpoint{}, time.Hour))
	assert.Error(t, store.Put(ctx, testCheckpoint(t, "thread-1"), 0))
}
