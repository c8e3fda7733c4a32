package checkpoint

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quillstone/agentrun/types"
)

// MemoryStore is an in-process checkpoint store for tests and single-node
// deployments. Claims are serialized by the mutex, so the claim-and-delete
// is atomic by construction.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string]memoryItem
	logger *zap.Logger
	now    func() time.Time
}

type memoryItem struct {
	cp        *Checkpoint
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		items:  make(map[string]memoryItem),
		logger: logger.With(zap.String("component", "checkpoint_memory")),
		now:    time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// Put stores a checkpoint with the given lifetime. The checkpoint is
// snapshotted through JSON, same as the Redis backend, so later mutations
// of the caller's state cannot reach the stored copy.
func (s *MemoryStore) Put(ctx context.Context, cp *Checkpoint, ttl time.Duration) error {
	if cp == nil || cp.ThreadID == "" {
		return types.NewError(types.ErrInvalidState, "checkpoint needs a thread id")
	}
	if ttl <= 0 {
		return types.NewError(types.ErrInvalidState, "checkpoint ttl must be positive")
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return types.NewError(types.ErrInternalError, "checkpoint save failed").WithCause(err)
	}
	var snapshot Checkpoint
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return types.NewError(types.ErrInternalError, "checkpoint save failed").WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cp.ThreadID] = memoryItem{cp: &snapshot, expiresAt: s.now().Add(ttl)}
	return nil
}

// GetAndClaim removes and returns the checkpoint. An expired checkpoint is
// indistinguishable from a missing one.
func (s *MemoryStore) GetAndClaim(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[threadID]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "no checkpoint for thread %s", threadID)
	}
	delete(s.items, threadID)
	if s.now().After(item.expiresAt) {
		return nil, types.NewErrorf(types.ErrNotFound, "no checkpoint for thread %s", threadID)
	}
	return item.cp, nil
}

// Delete removes a checkpoint without returning it.
func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, threadID)
	return nil
}
