package auth

import (
	"context"
	"encoding/json"

	"github.com/quillstone/agentrun/types"
)

// UserContext is the per-request identity: a user ID, the ordered scope set
// from an upstream-verified claim set, and derived lookups computed once at
// construction. It is never mutated after construction and lives for the
// duration of one request (plus any checkpointed suspension of it).
type UserContext struct {
	userID        string
	scopes        []Scope
	topicRole     map[string]Role
	isGlobalAdmin bool
}

// NewUserContext builds a UserContext from a verified user ID and raw scope
// strings. Malformed scopes reject the whole identity.
func NewUserContext(userID string, rawScopes []string) (*UserContext, error) {
	if userID == "" {
		return nil, types.NewError(types.ErrAuthentication, "user id is required")
	}
	scopes, err := ParseScopes(rawScopes)
	if err != nil {
		return nil, types.NewError(types.ErrAuthentication, "invalid scope claims").WithCause(err)
	}
	return newUserContext(userID, scopes), nil
}

func newUserContext(userID string, scopes []Scope) *UserContext {
	u := &UserContext{
		userID:    userID,
		scopes:    scopes,
		topicRole: make(map[string]Role, len(scopes)),
	}
	for _, s := range scopes {
		if s.IsGlobalAdmin() {
			u.isGlobalAdmin = true
		}
		if s.Role.Level() > u.topicRole[s.Topic].Level() {
			u.topicRole[s.Topic] = s.Role
		}
	}
	return u
}

// UserID returns the identity ID.
func (u *UserContext) UserID() string {
	return u.userID
}

// Scopes returns a copy of the scope set.
func (u *UserContext) Scopes() []Scope {
	out := make([]Scope, len(u.scopes))
	copy(out, u.scopes)
	return out
}

// IsGlobalAdmin reports whether the scope set contains global:admin.
func (u *UserContext) IsGlobalAdmin() bool {
	return u.isGlobalAdmin
}

// TopicRole returns the highest-level role granted for the topic, computed
// once at construction.
func (u *UserContext) TopicRole(topic string) Role {
	if u.isGlobalAdmin {
		return RoleAdmin
	}
	return u.topicRole[topic]
}

// Topics returns every topic the user holds a scope on.
func (u *UserContext) Topics() []string {
	topics := make([]string, 0, len(u.topicRole))
	for t := range u.topicRole {
		topics = append(topics, t)
	}
	return topics
}

// Permitted reports whether this identity meets the required role for the
// topic. Pure and safe for concurrent use.
func (u *UserContext) Permitted(topic string, required Role) bool {
	return Permitted(u.scopes, topic, required)
}

// userContextJSON is the wire form of a UserContext. Only the raw claims are
// persisted; derived fields are rebuilt on load so a checkpointed identity
// can never carry a stale role map.
type userContextJSON struct {
	UserID string  `json:"user_id"`
	Scopes []Scope `json:"scopes"`
}

// MarshalJSON encodes the identity's raw claims.
func (u *UserContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(userContextJSON{UserID: u.userID, Scopes: u.scopes})
}

// UnmarshalJSON rebuilds the identity, re-deriving the topic role map.
func (u *UserContext) UnmarshalJSON(data []byte) error {
	var raw userContextJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = *newUserContext(raw.UserID, raw.Scopes)
	return nil
}

type userContextKey struct{}

// WithUserContext stores the UserContext in the request context.
func WithUserContext(ctx context.Context, u *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// FromContext retrieves the UserContext from the request context.
func FromContext(ctx context.Context) (*UserContext, bool) {
	u, ok := ctx.Value(userContextKey{}).(*UserContext)
	return u, ok && u != nil
}
