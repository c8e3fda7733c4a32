// Package approval tracks human-in-the-loop publication decisions. Every
// suspended workflow has exactly one approval request; the request moves
// from pending to exactly one terminal status, and the store enforces that
// transition atomically so concurrent reviewers cannot both win.
package approval

import (
	"context"
	"time"
)

// Status is the lifecycle state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// Request is one pending or resolved publication approval.
type Request struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"thread_id"`
	ArticleID    string    `json:"article_id"`
	Topic        string    `json:"topic"`
	RequesterID  string    `json:"requester_id"`
	Reason       string    `json:"reason"`
	Status       Status    `json:"status"`
	DecidedBy    string    `json:"decided_by,omitempty"`
	DecisionNote string    `json:"decision_note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	DecidedAt    time.Time `json:"decided_at,omitempty"`
}

// Decision carries a reviewer's verdict into Resolve.
type Decision struct {
	Status    Status
	DecidedBy string
	Note      string
}

// Store persists approval requests.
//
// Resolve is conditional: it moves the request from the given status to the
// decision's status in one atomic operation and fails when the request is
// not in that status anymore. That single check is what makes resolution
// exactly-once under concurrent reviewers.
// GetByThread returns the most recent request for a thread regardless of
// status, so a resume on an already-decided thread can report the conflict
// instead of pretending the thread never suspended.
type Store interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	GetByThread(ctx context.Context, threadID string) (*Request, error)
	Resolve(ctx context.Context, id string, from Status, decision Decision) error
	ListPending(ctx context.Context, topic string) ([]*Request, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]*Request, error)
}
