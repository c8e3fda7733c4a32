// Package checkpoint persists suspended workflow state between the request
// that paused and the request that resumes it. A checkpoint can be claimed
// exactly once: the claim removes it atomically, which is what guarantees a
// suspended workflow resumes at most one time under concurrent attempts.
package checkpoint

import (
	"context"
	"time"

	"github.com/quillstone/agentrun/workflow"
)

// Checkpoint is a suspended workflow frozen to storage, keyed by its
// thread. A thread has at most one live checkpoint; writing another
// replaces it.
type Checkpoint struct {
	ThreadID   string               `json:"thread_id"`
	ApprovalID string               `json:"approval_id"`
	State      *workflow.AgentState `json:"state"`
	Suspension *workflow.Suspension `json:"suspension"`
	CreatedAt  time.Time            `json:"created_at"`
	ExpiresAt  time.Time            `json:"expires_at"`
}

// Store persists checkpoints with a bounded lifetime.
//
// GetAndClaim is the only read path on resume and must be atomic with the
// removal: of any number of concurrent claims for the same thread, exactly
// one receives the checkpoint and the rest see NOT_FOUND.
type Store interface {
	Put(ctx context.Context, cp *Checkpoint, ttl time.Duration) error
	GetAndClaim(ctx context.Context, threadID string) (*Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
}
