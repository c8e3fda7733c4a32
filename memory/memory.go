// Package memory provides the bounded, expiring per-user conversation log
// consumed by the workflow engine. A store failure is never fatal to a
// request: callers degrade to an empty history.
package memory

import (
	"context"
	"time"

	"github.com/quillstone/agentrun/types"
)

// Entry is one conversation turn in a user's log.
type Entry struct {
	UserID    string     `json:"user_id"`
	Role      types.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

// Store is the conversation memory contract. Load returns at most the
// configured number of most-recent entries, oldest first; Append trims the
// oldest entries beyond the cap; entries past the inactivity TTL are
// unreadable even if still physically present.
type Store interface {
	Load(ctx context.Context, userID string) ([]Entry, error)
	Append(ctx context.Context, userID string, entry Entry) error
	Clear(ctx context.Context, userID string) error
}

// Config bounds a conversation memory store.
type Config struct {
	// MaxEntries is the per-user cap. Zero falls back to DefaultMaxEntries.
	MaxEntries int
	// TTL is the inactivity window after which entries expire. Zero falls
	// back to DefaultTTL.
	TTL time.Duration
}

const (
	DefaultMaxEntries = 20
	DefaultTTL        = 30 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	return c
}
