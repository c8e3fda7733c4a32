package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quillstone/agentrun/types"
)

// RedisStore persists checkpoints as JSON values with a server-side TTL.
// The claim is a single GETDEL, so atomicity comes from Redis itself: under
// concurrent resumes exactly one caller receives the value.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore creates a Redis-backed checkpoint store.
func NewRedisStore(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "agentrun:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "checkpoint:",
		logger:    logger.With(zap.String("component", "checkpoint_redis")),
	}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) key(threadID string) string {
	return s.keyPrefix + threadID
}

// Put stores the checkpoint with the given lifetime. Redis handles expiry;
// a checkpoint past its TTL simply stops existing.
func (s *RedisStore) Put(ctx context.Context, cp *Checkpoint, ttl time.Duration) error {
	if cp == nil || cp.ThreadID == "" {
		return types.NewError(types.ErrInvalidState, "checkpoint needs a thread id")
	}
	if ttl <= 0 {
		return types.NewError(types.ErrInvalidState, "checkpoint ttl must be positive")
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key(cp.ThreadID), data, ttl).Err(); err != nil {
		return types.NewError(types.ErrInternalError, "checkpoint save failed").WithCause(err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("thread_id", cp.ThreadID),
		zap.Duration("ttl", ttl),
	)
	return nil
}

// GetAndClaim removes and returns the checkpoint in one command.
func (s *RedisStore) GetAndClaim(ctx context.Context, threadID string) (*Checkpoint, error) {
	data, err := s.client.GetDel(ctx, s.key(threadID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewErrorf(types.ErrNotFound, "no checkpoint for thread %s", threadID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "checkpoint claim failed").WithCause(err)
	}

	var cp Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, types.NewError(types.ErrInternalError, "checkpoint is unreadable").WithCause(err)
	}
	return &cp, nil
}

// Delete removes a checkpoint without returning it.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, s.key(threadID)).Err(); err != nil {
		return types.NewError(types.ErrInternalError, "checkpoint delete failed").WithCause(err)
	}
	return nil
}
