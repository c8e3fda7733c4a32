package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quillstone/agentrun/types"
)

// InMemoryStore is a Store backed by a process-local map. It is used for
// local development, tests, and single-node deployments.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string][]Entry

	config Config
	now    func() time.Time
	logger *zap.Logger
}

// NewInMemoryStore creates an in-process conversation memory store.
func NewInMemoryStore(config Config, logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryStore{
		entries: make(map[string][]Entry),
		config:  config.withDefaults(),
		now:     time.Now,
		logger:  logger.With(zap.String("component", "memory_store_inmemory")),
	}
}

// Load returns the user's unexpired entries, oldest first.
func (s *InMemoryStore) Load(ctx context.Context, userID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpiredLocked(userID)
	stored := s.entries[userID]
	out := make([]Entry, len(stored))
	copy(out, stored)
	return out, nil
}

// Append adds an entry and trims the oldest entries beyond the cap.
func (s *InMemoryStore) Append(ctx context.Context, userID string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID == "" {
		return types.NewError(types.ErrInvalidRequest, "user id is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry.UserID = userID

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpiredLocked(userID)
	list := append(s.entries[userID], entry)
	if excess := len(list) - s.config.MaxEntries; excess > 0 {
		list = list[excess:]
	}
	s.entries[userID] = list
	return nil
}

// Clear removes all of the user's entries immediately.
func (s *InMemoryStore) Clear(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

func (s *InMemoryStore) dropExpiredLocked(userID string) {
	cutoff := s.now().Add(-s.config.TTL)
	list := s.entries[userID]
	idx := 0
	for idx < len(list) && !list[idx].Timestamp.After(cutoff) {
		idx++
	}
	if idx == 0 {
		return
	}
	if idx == len(list) {
		delete(s.entries, userID)
		return
	}
	s.entries[userID] = list[idx:]
}

var _ Store = (*InMemoryStore)(nil)
