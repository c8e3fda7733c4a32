package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstone/agentrun/types"
)

func TestInMemoryStore_AppendAndLoad(t *testing.T) {
	store := NewInMemoryStore(Config{MaxEntries: 5, TTL: time.Hour}, nil)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u-1", Entry{Role: types.RoleUser, Content: "hello"}))
	require.NoError(t, store.Append(ctx, "u-1", Entry{Role: types.RoleAssistant, Content: "hi"}))

	entries, err := store.Load(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Content)
	assert.Equal(t, "hi", entries[1].Content)
	assert.Equal(t, "u-1", entries[0].UserID)
}

func TestInMemoryStore_TrimsOldestBeyondCap(t *testing.T) {
	store := NewInMemoryStore(Config{MaxEntries: 3, TTL: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Append(ctx, "u-1", Entry{
			Role:    types.RoleUser,
			Content: fmt.Sprintf("msg-%d", i),
		}))
	}

	entries, err := store.Load(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// The newest entries survive, never the oldest.
	assert.Equal(t, "msg-7", entries[0].Content)
	assert.Equal(t, "msg-9", entries[2].Content)
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	store := NewInMemoryStore(Config{MaxEntries: 10, TTL: time.Minute}, nil)
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u-1", Entry{Role: types.RoleUser, Content: "old"}))

	current = current.Add(30 * time.Second)
	require.NoError(t, store.Append(ctx, "u-1", Entry{Role: types.RoleUser, Content: "newer"}))

	// Past the TTL of the first entry but not the second: the expired entry
	// is unreadable even though it was physically present.
	current = current.Add(45 * time.Second)
	entries, err := store.Load(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "newer", entries[0].Content)

	current = current.Add(time.Hour)
	entries, err = store.Load(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInMemoryStore_Clear(t *testing.T) {
	store := NewInMemoryStore(Config{}, nil)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u-1", Entry{Role: types.RoleUser, Content: "hello"}))
	require.NoError(t, store.Clear(ctx, "u-1"))

	entries, err := store.Load(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInMemoryStore_UsersIsolated(t *testing.T) {
	store := NewInMemoryStore(Config{}, nil)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u-1", Entry{Role: types.RoleUser, Content: "mine"}))
	require.NoError(t, store.Append(ctx, "u-2", Entry{Role: types.RoleUser, Content: "theirs"}))

	entries, err := store.Load(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mine", entries[0].Content)
}

func TestInMemoryStore_RequiresUserID(t *testing.T) {
	store := NewInMemoryStore(Config{}, nil)
	ctx := context.Background()

	_, err := store.Load(ctx, "")
	assert.Error(t, err)
	assert.Error(t, store.Append(ctx, "", Entry{}))
}
