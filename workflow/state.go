// Package workflow implements the agent state machine: a compiled graph of
// a router node, intent-specific handler nodes, and a response builder,
// with an out-of-band suspension path for human-in-the-loop approvals.
//
// The compiled graph is built once per process and holds no per-request
// data; every invocation runs on its own AgentState, which is what makes
// concurrent invocations safe without locking the engine.
package workflow

import (
	"github.com/quillstone/agentrun/auth"
	"github.com/quillstone/agentrun/classify"
	"github.com/quillstone/agentrun/types"
)

// Decision is a reviewer's verdict on a suspended workflow.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether the decision is one of the known verdicts.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// UIDirective is a side-effect instruction for the client UI.
type UIDirective struct {
	Action string            `json:"action"`
	Target string            `json:"target,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// AgentState is the mutable record threaded through one workflow
// invocation. It is owned exclusively by that invocation and never shared;
// the only thing that outlives the request is a JSON snapshot inside a
// checkpoint.
type AgentState struct {
	ThreadID string                   `json:"thread_id"`
	Messages []types.Message          `json:"messages"`
	User     *auth.UserContext        `json:"user"`
	Nav      *types.NavigationContext `json:"nav,omitempty"`

	Intent        *classify.Intent `json:"intent,omitempty"`
	Handler       string           `json:"handler,omitempty"`
	RoutingReason string           `json:"routing_reason,omitempty"`

	ResponseText     string       `json:"response_text,omitempty"`
	UIDirective      *UIDirective `json:"ui_directive,omitempty"`
	Entities         []string     `json:"entities,omitempty"`
	PendingArticleID string       `json:"pending_article_id,omitempty"`
	ResumeDecision   Decision     `json:"resume_decision,omitempty"`

	Iterations int          `json:"iterations"`
	Terminal   bool         `json:"terminal"`
	Err        *types.Error `json:"error,omitempty"`
}

// NewAgentState creates the state for one invocation. The history becomes
// the head of the message list and the inbound message is appended as the
// final user turn.
func NewAgentState(threadID string, user *auth.UserContext, nav *types.NavigationContext, history []types.Message, message string) *AgentState {
	messages := make([]types.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, types.NewUserMessage(message))
	return &AgentState{
		ThreadID: threadID,
		Messages: messages,
		User:     user,
		Nav:      nav,
	}
}

// LastUserMessage returns the content of the most recent user turn.
func (s *AgentState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == types.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// RecentHistory returns up to n messages preceding the final user turn, for
// use as classifier context.
func (s *AgentState) RecentHistory(n int) []types.Message {
	if len(s.Messages) <= 1 {
		return nil
	}
	head := s.Messages[:len(s.Messages)-1]
	if len(head) > n {
		head = head[len(head)-n:]
	}
	out := make([]types.Message, len(head))
	copy(out, head)
	return out
}

// Topic resolves the target topic for the invocation: the classified topic
// wins, the navigation hint is the fallback.
func (s *AgentState) Topic() string {
	if s.Intent != nil && s.Intent.Topic != "" {
		return s.Intent.Topic
	}
	if s.Nav != nil {
		return s.Nav.Topic
	}
	return ""
}

// AppendAssistant appends an assistant turn to the message list.
func (s *AgentState) AppendAssistant(content string) {
	s.Messages = append(s.Messages, types.NewAssistantMessage(content))
}
