// Package tool provides the static catalogue of callable capabilities with
// permission metadata. Listing is advisory; the registry re-checks
// permission at invocation time, so a tool filtered out of a client's list
// stays unreachable even when named directly.
package tool

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/quillstone/agentrun/auth"
	"github.com/quillstone/agentrun/types"
)

// Handler executes a tool call on behalf of the given identity.
type Handler func(ctx context.Context, params map[string]any, user *auth.UserContext) (any, error)

// Tool is one registered capability and its permission metadata.
type Tool struct {
	Name        string
	Description string
	Handler     Handler

	// RequiredRole is the role the caller must hold; against the request
	// topic when TopicScoped, against the global pseudo-topic otherwise.
	RequiredRole auth.Role
	// TopicScoped tools are checked against the topic of the request.
	TopicScoped bool
	// GlobalAdminOverride admits global admins regardless of topic role.
	GlobalAdminOverride bool
	// RequiresApproval marks publish-class tools that suspend for a human
	// decision instead of completing inline.
	RequiresApproval bool
}

// Registry is the tool catalogue. Registration happens at startup; after
// that the catalogue is read-only and safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool to the catalogue. Duplicate names and nil handlers
// are rejected.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return types.NewError(types.ErrInvalidRequest, "tool name is required")
	}
	if t.Handler == nil {
		return types.NewErrorf(types.ErrInvalidRequest, "tool %s has no handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return types.NewErrorf(types.ErrInvalidRequest, "tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t

	r.logger.Info("tool registered",
		zap.String("tool", t.Name),
		zap.String("required_role", t.RequiredRole.String()),
		zap.Bool("topic_scoped", t.TopicScoped),
	)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Filter returns the tools the identity may call for the given topic,
// sorted by name.
func (r *Registry) Filter(user *auth.UserContext, topic string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if permitted(t, user, topic) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs a tool after re-checking permission. An unknown tool and a
// denied tool both fail with TOOL_NOT_PERMITTED: callers learn nothing
// about the catalogue beyond what Filter already showed them.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any, user *auth.UserContext, topic string) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok || !permitted(t, user, topic) {
		r.logger.Warn("tool invocation denied",
			zap.String("tool", name),
			zap.String("user_id", userID(user)),
			zap.String("topic", topic),
		)
		return nil, types.NewErrorf(types.ErrToolNotPermitted, "tool %s is not permitted", name)
	}

	return t.Handler(ctx, params, user)
}

func permitted(t Tool, user *auth.UserContext, topic string) bool {
	if user == nil {
		return false
	}
	if t.GlobalAdminOverride && user.IsGlobalAdmin() {
		return true
	}
	if !t.TopicScoped {
		return user.Permitted(auth.GlobalTopic, t.RequiredRole)
	}
	if topic == "" {
		return false
	}
	return user.Permitted(topic, t.RequiredRole)
}

func userID(user *auth.UserContext) string {
	if user == nil {
		return ""
	}
	return user.UserID()
}
