package approval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quillstone/agentrun/auth"
	"github.com/quillstone/agentrun/checkpoint"
	"github.com/quillstone/agentrun/types"
	"github.com/quillstone/agentrun/workflow"
)

// DefaultTTL is how long a suspended workflow waits for a decision.
const DefaultTTL = 24 * time.Hour

// Coordinator ties the approval ledger to the checkpoint store. Suspend
// writes both; Resume resolves the ledger entry exactly once and claims the
// checkpoint exactly once, in that order, so a racing reviewer fails on the
// ledger before ever touching workflow state.
type Coordinator struct {
	approvals   Store
	checkpoints checkpoint.Store
	notifier    Notifier
	ttl         time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTTL overrides the approval window.
func WithTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNotifier sets the reviewer notification channel.
func WithNotifier(n Notifier) CoordinatorOption {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// NewCoordinator wires an approval store and a checkpoint store together.
func NewCoordinator(approvals Store, checkpoints checkpoint.Store, logger *zap.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		approvals:   approvals,
		checkpoints: checkpoints,
		notifier:    NewLogNotifier(logger),
		ttl:         DefaultTTL,
		logger:      logger.With(zap.String("component", "approval_coordinator")),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Suspend freezes a paused workflow: one approval request plus one
// checkpoint, both with the same deadline. A failed checkpoint write voids
// the just-created request so no orphaned pending approval survives.
func (c *Coordinator) Suspend(ctx context.Context, state *workflow.AgentState, susp *workflow.Suspension) (*Request, error) {
	if state == nil || susp == nil {
		return nil, types.NewError(types.ErrInvalidState, "suspend needs state and a suspension")
	}

	now := c.now()
	req := &Request{
		ID:           uuid.NewString(),
		ThreadID:     state.ThreadID,
		ArticleID:    susp.ArticleID,
		Topic:        susp.Topic,
		RequesterID:  requesterID(state),
		Reason:       susp.Reason,
		Status:       StatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.ttl),
	}
	if err := c.approvals.Create(ctx, req); err != nil {
		return nil, err
	}

	cp := &checkpoint.Checkpoint{
		ThreadID:   state.ThreadID,
		ApprovalID: req.ID,
		State:      state,
		Suspension: susp,
		CreatedAt:  now,
		ExpiresAt:  req.ExpiresAt,
	}
	if err := c.checkpoints.Put(ctx, cp, c.ttl); err != nil {
		// Void the request so it never shows up as actionable.
		void := Decision{Status: StatusExpired, DecidedBy: "system", Note: "checkpoint save failed"}
		if rbErr := c.approvals.Resolve(ctx, req.ID, StatusPending, void); rbErr != nil {
			c.logger.Error("failed to void approval after checkpoint failure",
				zap.String("approval_id", req.ID), zap.Error(rbErr))
		}
		return nil, err
	}

	if err := c.notifier.Notify(ctx, req); err != nil {
		c.logger.Warn("approval notification failed",
			zap.String("approval_id", req.ID), zap.Error(err))
	}

	c.logger.Info("workflow suspended for approval",
		zap.String("approval_id", req.ID),
		zap.String("thread_id", state.ThreadID),
		zap.String("article_id", susp.ArticleID),
	)
	return req, nil
}

// Resume applies a reviewer's decision to a suspended thread. The ledger
// transition happens first and admits exactly one winner; everyone else
// gets APPROVAL_CONFLICT, or WORKFLOW_EXPIRED when the window already
// closed. The claimed checkpoint comes back so the caller can re-enter the
// graph.
func (c *Coordinator) Resume(ctx context.Context, threadID string, reviewer *auth.UserContext, decision workflow.Decision, note string) (*checkpoint.Checkpoint, *Request, error) {
	if !decision.Valid() {
		return nil, nil, types.NewErrorf(types.ErrInvalidRequest, "unknown decision %q", decision)
	}

	req, err := c.approvals.GetByThread(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	if reviewer == nil || !reviewer.Permitted(req.Topic, auth.RoleEditor) {
		return nil, nil, types.NewErrorf(types.ErrPermissionDenied,
			"resolving approvals in %s requires editor access", req.Topic)
	}

	status := StatusApproved
	if decision == workflow.DecisionReject {
		status = StatusRejected
	}
	resolved := Decision{Status: status, DecidedBy: reviewer.UserID(), Note: note}
	if err := c.approvals.Resolve(ctx, req.ID, StatusPending, resolved); err != nil {
		return nil, nil, c.classifyResolveFailure(ctx, req.ID, err)
	}

	cp, err := c.checkpoints.GetAndClaim(ctx, threadID)
	if err != nil {
		if types.IsCode(err, types.ErrNotFound) {
			// The ledger entry won but the workflow state is gone: the
			// window closed. Record that instead of the verdict.
			void := Decision{Status: StatusExpired, DecidedBy: "system", Note: "workflow checkpoint expired"}
			if rbErr := c.approvals.Resolve(ctx, req.ID, status, void); rbErr != nil {
				c.logger.Error("failed to mark approval expired",
					zap.String("approval_id", req.ID), zap.Error(rbErr))
			}
			return nil, nil, types.NewErrorf(types.ErrWorkflowExpired,
				"workflow for thread %s has expired", threadID)
		}
		return nil, nil, err
	}

	req.Status = status
	req.DecidedBy = resolved.DecidedBy
	req.DecisionNote = note
	c.logger.Info("approval decision accepted",
		zap.String("approval_id", req.ID),
		zap.String("thread_id", threadID),
		zap.String("status", string(status)),
		zap.String("decided_by", resolved.DecidedBy),
	)
	return cp, req, nil
}

// classifyResolveFailure turns a lost ledger transition into the caller's
// actual situation: the window closed, or someone else decided first.
func (c *Coordinator) classifyResolveFailure(ctx context.Context, approvalID string, resolveErr error) error {
	if !types.IsCode(resolveErr, types.ErrApprovalConflict) {
		return resolveErr
	}
	req, err := c.approvals.Get(ctx, approvalID)
	if err != nil {
		return resolveErr
	}
	if req.Status == StatusExpired {
		return types.NewErrorf(types.ErrWorkflowExpired, "workflow for approval %s has expired", approvalID)
	}
	return types.NewErrorf(types.ErrApprovalConflict,
		"approval %s was already %s by %s", approvalID, req.Status, req.DecidedBy)
}

// ListPending returns the pending requests a reviewer may act on.
func (c *Coordinator) ListPending(ctx context.Context, reviewer *auth.UserContext, topic string) ([]*Request, error) {
	pending, err := c.approvals.ListPending(ctx, topic)
	if err != nil {
		return nil, err
	}
	if reviewer == nil {
		return nil, types.NewError(types.ErrAuthentication, "no authenticated user")
	}

	out := make([]*Request, 0, len(pending))
	for _, req := range pending {
		if reviewer.Permitted(req.Topic, auth.RoleEditor) {
			out = append(out, req)
		}
	}
	return out, nil
}

// ExpireOverdue sweeps pending requests past their deadline, dropping their
// checkpoints. Intended to run on a timer.
func (c *Coordinator) ExpireOverdue(ctx context.Context) (int, error) {
	expired, err := c.approvals.ExpireOverdue(ctx, c.now())
	if err != nil {
		return 0, err
	}
	for _, req := range expired {
		if err := c.checkpoints.Delete(ctx, req.ThreadID); err != nil {
			c.logger.Warn("failed to drop expired checkpoint",
				zap.String("approval_id", req.ID), zap.Error(err))
		}
	}
	if len(expired) > 0 {
		c.logger.Info("expired overdue approvals", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

func requesterID(state *workflow.AgentState) string {
	if state.User == nil {
		return ""
	}
	return state.User.UserID()
}
