package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quillstone/agentrun/types"
)

// MemoryStore is an in-process Store for tests and single-node use. The
// mutex serializes Resolve, giving it the same exactly-once guarantee the
// relational store gets from its conditional UPDATE.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*Request
}

// NewMemoryStore creates an empty in-process approval store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Request)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, req *Request) error {
	if req == nil || req.ID == "" {
		return types.NewError(types.ErrInvalidState, "approval request needs an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[req.ID]; exists {
		return types.NewErrorf(types.ErrInvalidState, "approval %s already exists", req.ID)
	}
	clone := *req
	s.items[req.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.items[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "approval %s not found", id)
	}
	clone := *req
	return &clone, nil
}

func (s *MemoryStore) GetByThread(ctx context.Context, threadID string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Request
	for _, req := range s.items {
		if req.ThreadID != threadID {
			continue
		}
		if latest == nil || req.CreatedAt.After(latest.CreatedAt) {
			latest = req
		}
	}
	if latest == nil {
		return nil, types.NewErrorf(types.ErrNotFound, "no approval for thread %s", threadID)
	}
	clone := *latest
	return &clone, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id string, from Status, decision Decision) error {
	if !decision.Status.Terminal() {
		return types.NewErrorf(types.ErrInvalidState, "%s is not a terminal status", decision.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.items[id]
	if !ok || req.Status != from {
		return types.NewErrorf(types.ErrApprovalConflict, "approval %s is no longer %s", id, from)
	}
	req.Status = decision.Status
	req.DecidedBy = decision.DecidedBy
	req.DecisionNote = decision.Note
	req.DecidedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListPending(ctx context.Context, topic string) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Request
	for _, req := range s.items {
		if req.Status != StatusPending {
			continue
		}
		if topic != "" && req.Topic != topic {
			continue
		}
		clone := *req
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ExpireOverdue(ctx context.Context, now time.Time) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*Request
	for _, req := range s.items {
		if req.Status != StatusPending || req.ExpiresAt.After(now) {
			continue
		}
		req.Status = StatusExpired
		req.DecidedBy = "system"
		req.DecisionNote = "approval window elapsed"
		req.DecidedAt = now
		clone := *req
		expired = append(expired, &clone)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	return expired, nil
}
