// Package orchestrator is the front door of the runtime: it turns an
// authenticated chat request into a workflow run, persists suspensions
// through the approval coordinator, and keeps per-user conversation memory
// on a best-effort basis.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quillstone/agentrun/approval"
	"github.com/quillstone/agentrun/auth"
	"github.com/quillstone/agentrun/internal/metrics"
	"github.com/quillstone/agentrun/memory"
	"github.com/quillstone/agentrun/tool"
	"github.com/quillstone/agentrun/types"
	"github.com/quillstone/agentrun/workflow"
)

// Request is one inbound chat turn.
type Request struct {
	ThreadID string                   `json:"thread_id,omitempty"`
	Message  string                   `json:"message"`
	Nav      *types.NavigationContext `json:"nav,omitempty"`
}

// PendingApproval tells the caller their request is parked on a human
// decision.
type PendingApproval struct {
	ApprovalID string    `json:"approval_id"`
	ArticleID  string    `json:"article_id"`
	Topic      string    `json:"topic"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Response is the outcome of an invocation or a resume.
type Response struct {
	ThreadID      string                `json:"thread_id"`
	Text          string                `json:"text"`
	UIDirective   *workflow.UIDirective `json:"ui_directive,omitempty"`
	Entities      []string              `json:"entities,omitempty"`
	Handler       string                `json:"handler,omitempty"`
	RoutingReason string                `json:"routing_reason,omitempty"`
	Pending       *PendingApproval      `json:"pending_approval,omitempty"`
}

// Runtime wires the compiled workflow graph to its stores.
type Runtime struct {
	engine      *workflow.Engine
	coordinator *approval.Coordinator
	memory      memory.Store
	tools       *tool.Registry
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// Deps are the collaborators a Runtime needs. Engine, Coordinator, and
// Memory are required; Metrics may be nil.
type Deps struct {
	Engine      *workflow.Engine
	Coordinator *approval.Coordinator
	Memory      memory.Store
	Tools       *tool.Registry
	Metrics     *metrics.Collector
	Logger      *zap.Logger
}

// NewRuntime creates the orchestration runtime.
func NewRuntime(deps Deps) (*Runtime, error) {
	if deps.Engine == nil {
		return nil, types.NewError(types.ErrInvalidState, "runtime needs a workflow engine")
	}
	if deps.Coordinator == nil {
		return nil, types.NewError(types.ErrInvalidState, "runtime needs an approval coordinator")
	}
	if deps.Memory == nil {
		return nil, types.NewError(types.ErrInvalidState, "runtime needs a memory store")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runtime{
		engine:      deps.Engine,
		coordinator: deps.Coordinator,
		memory:      deps.Memory,
		tools:       deps.Tools,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With(zap.String("component", "orchestrator")),
	}, nil
}

// Invoke runs one chat turn through the workflow graph. Memory problems
// never fail the turn; the run just proceeds with less context.
func (r *Runtime) Invoke(ctx context.Context, user *auth.UserContext, req Request) (*Response, error) {
	if user == nil {
		return nil, types.NewError(types.ErrAuthentication, "no authenticated user")
	}
	if req.Message == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "message is required")
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	started := time.Now()
	history := r.loadHistory(ctx, user.UserID())
	state := workflow.NewAgentState(threadID, user, req.Nav, history, req.Message)

	outcome, err := r.engine.Run(ctx, state)
	if err != nil {
		r.observeFailure(state, err, started)
		return nil, err
	}
	if state.RoutingReason == workflow.RoutingReasonFallback {
		r.metrics.ObserveClassifierFallback()
	}

	if outcome.Suspended() {
		// The turn is parked, but it still happened: keep the triggering
		// message in history. The assistant turn follows on resume.
		r.remember(ctx, user.UserID(), memory.Entry{Role: types.RoleUser, Content: req.Message})
		return r.suspend(ctx, state, outcome.Suspension, started)
	}

	r.remember(ctx, user.UserID(),
		memory.Entry{Role: types.RoleUser, Content: req.Message},
		memory.Entry{Role: types.RoleAssistant, Content: state.ResponseText},
	)
	r.metrics.ObserveInvocation(state.Handler, "ok", time.Since(started))
	return buildResponse(state, nil), nil
}

// Resume applies a reviewer decision to a suspended thread and runs the
// graph from where it left off.
func (r *Runtime) Resume(ctx context.Context, reviewer *auth.UserContext, threadID string, decision workflow.Decision, note string) (*Response, error) {
	started := time.Now()

	cp, req, err := r.coordinator.Resume(ctx, threadID, reviewer, decision, note)
	if err != nil {
		r.metrics.ObserveResume(resumeOutcome(err))
		return nil, err
	}

	state := cp.State
	state.ResumeDecision = decision
	next, ok := r.engine.Successor(cp.Suspension.Node)
	if !ok {
		r.metrics.ObserveResume("error")
		return nil, types.NewErrorf(types.ErrInvalidState,
			"node %s has no resume successor", cp.Suspension.Node)
	}

	outcome, err := r.engine.RunFrom(ctx, state, next)
	if err != nil {
		r.metrics.ObserveResume("error")
		return nil, err
	}
	if outcome.Suspended() {
		r.metrics.ObserveResume(string(req.Status))
		return r.suspend(ctx, state, outcome.Suspension, started)
	}

	r.remember(ctx, req.RequesterID,
		memory.Entry{Role: types.RoleAssistant, Content: state.ResponseText},
	)
	r.metrics.ObserveResume(string(req.Status))
	r.metrics.ObserveInvocation(state.Handler, "ok", time.Since(started))
	return buildResponse(state, nil), nil
}

// ListPendingApprovals returns the approvals the reviewer may act on.
func (r *Runtime) ListPendingApprovals(ctx context.Context, reviewer *auth.UserContext, topic string) ([]*approval.Request, error) {
	return r.coordinator.ListPending(ctx, reviewer, topic)
}

// Tools lists the tools the user may call for the topic.
func (r *Runtime) Tools(user *auth.UserContext, topic string) []tool.Tool {
	if r.tools == nil {
		return nil
	}
	return r.tools.Filter(user, topic)
}

// InvokeTool calls a registered tool directly, with the registry's own
// permission recheck in front.
func (r *Runtime) InvokeTool(ctx context.Context, user *auth.UserContext, name string, params map[string]any, topic string) (any, error) {
	if r.tools == nil {
		return nil, types.NewErrorf(types.ErrToolNotPermitted, "tool %s is not permitted", name)
	}
	result, err := r.tools.Invoke(ctx, name, params, user, topic)
	if err != nil && types.IsCode(err, types.ErrToolNotPermitted) {
		r.metrics.ObservePermissionDenial()
	}
	return result, err
}

func (r *Runtime) suspend(ctx context.Context, state *workflow.AgentState, susp *workflow.Suspension, started time.Time) (*Response, error) {
	req, err := r.coordinator.Suspend(ctx, state, susp)
	if err != nil {
		r.metrics.ObserveInvocation(state.Handler, "error", time.Since(started))
		return nil, err
	}

	r.metrics.ObserveSuspension(susp.Topic)
	r.metrics.ObserveInvocation(state.Handler, "suspended", time.Since(started))
	if state.ResponseText == "" {
		state.ResponseText = "Publication is awaiting approval."
	}
	return buildResponse(state, &PendingApproval{
		ApprovalID: req.ID,
		ArticleID:  req.ArticleID,
		Topic:      req.Topic,
		ExpiresAt:  req.ExpiresAt,
	}), nil
}

func (r *Runtime) loadHistory(ctx context.Context, userID string) []types.Message {
	entries, err := r.memory.Load(ctx, userID)
	if err != nil {
		r.logger.Warn("conversation memory unavailable, continuing without history",
			zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	history := make([]types.Message, 0, len(entries))
	for _, e := range entries {
		history = append(history, types.Message{
			Role:      e.Role,
			Content:   e.Content,
			Timestamp: e.Timestamp,
		})
	}
	return history
}

func (r *Runtime) remember(ctx context.Context, userID string, entries ...memory.Entry) {
	for _, entry := range entries {
		if entry.Content == "" {
			continue
		}
		if err := r.memory.Append(ctx, userID, entry); err != nil {
			r.logger.Warn("failed to record conversation memory",
				zap.String("user_id", userID), zap.Error(err))
			return
		}
	}
}

func (r *Runtime) observeFailure(state *workflow.AgentState, err error, started time.Time) {
	if types.IsCode(err, types.ErrPermissionDenied) {
		r.metrics.ObservePermissionDenial()
	}
	r.metrics.ObserveInvocation(state.Handler, "error", time.Since(started))
}

func buildResponse(state *workflow.AgentState, pending *PendingApproval) *Response {
	return &Response{
		ThreadID:      state.ThreadID,
		Text:          state.ResponseText,
		UIDirective:   state.UIDirective,
		Entities:      state.Entities,
		Handler:       state.Handler,
		RoutingReason: state.RoutingReason,
		Pending:       pending,
	}
}

func resumeOutcome(err error) string {
	switch types.GetErrorCode(err) {
	case types.ErrWorkflowExpired:
		return "expired"
	case types.ErrApprovalConflict:
		return "conflict"
	case types.ErrPermissionDenied:
		return "denied"
	case types.ErrNotFound:
		return "not_found"
	default:
		return "error"
	}
}
