package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quillstone/agentrun/types"
)

// RedisStore is a Store backed by Redis lists, suitable for multi-node
// deployments. Each user's log is one list; the key TTL is refreshed on
// every append, so the whole log expires after the inactivity window.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	config    Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewRedisStore creates a Redis-backed conversation memory store.
func NewRedisStore(client *redis.Client, keyPrefix string, config Config, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "agentrun:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "memory:",
		config:    config.withDefaults(),
		now:       time.Now,
		logger:    logger.With(zap.String("component", "memory_store_redis")),
	}
}

func (s *RedisStore) key(userID string) string {
	return s.keyPrefix + userID
}

// Load returns the user's unexpired entries, oldest first.
func (s *RedisStore) Load(ctx context.Context, userID string) ([]Entry, error) {
	if userID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "user id is required")
	}

	raw, err := s.client.LRange(ctx, s.key(userID), int64(-s.config.MaxEntries), -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrMemoryUnavailable, "memory load failed").WithCause(err)
	}

	cutoff := s.now().Add(-s.config.TTL)
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			s.logger.Warn("skipping unreadable memory entry", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if entry.Timestamp.After(cutoff) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Append adds an entry, trims the list to the cap, and refreshes the
// inactivity TTL. The three commands run in one pipeline so per-user
// ordering relies only on Redis's atomic list append.
func (s *RedisStore) Append(ctx context.Context, userID string, entry Entry) error {
	if userID == "" {
		return types.NewError(types.ErrInvalidRequest, "user id is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry.UserID = userID

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal memory entry: %w", err)
	}

	key := s.key(userID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.config.MaxEntries), -1)
	pipe.Expire(ctx, key, s.config.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrMemoryUnavailable, "memory append failed").WithCause(err)
	}
	return nil
}

// Clear removes all of the user's entries immediately.
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return types.NewError(types.ErrInvalidRequest, "user id is required")
	}
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return types.NewError(types.ErrMemoryUnavailable, "memory clear failed").WithCause(err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
