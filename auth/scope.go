// Package auth resolves effective permissions from topic-scoped role grants.
//
// A scope is a string of the form "{topic}:{role}" or "global:{role}". Roles
// form a partial order: admin satisfies everything, analyst and editor are
// parallel branches that do not satisfy each other, and reader sits below
// all three.
package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quillstone/agentrun/types"
)

// GlobalTopic is the pseudo-topic used by scopes that are not bound to a
// single content topic.
const GlobalTopic = "global"

// Role is a permission level within a topic.
type Role int

const (
	RoleNone    Role = 0
	RoleReader  Role = 1
	RoleEditor  Role = 2
	RoleAnalyst Role = 3
	RoleAdmin   Role = 4
)

var roleNames = map[Role]string{
	RoleNone:    "none",
	RoleReader:  "reader",
	RoleEditor:  "editor",
	RoleAnalyst: "analyst",
	RoleAdmin:   "admin",
}

// ParseRole parses a role name. Unknown names are an error, not a silent
// downgrade.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "reader":
		return RoleReader, nil
	case "editor":
		return RoleEditor, nil
	case "analyst":
		return RoleAnalyst, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleNone, types.NewErrorf(types.ErrInvalidRequest, "unknown role %q", name)
	}
}

// String returns the role name.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Level returns the numeric level of the role. Levels are only comparable
// along an inheritance branch; use Satisfies for permission checks.
func (r Role) Level() int {
	return int(r)
}

// Satisfies reports whether a grant of role r meets the given requirement.
//
// Analyst and editor are parallel branches: a requirement of editor is met
// only by editor or admin, and a requirement of analyst only by analyst or
// admin. A plain level comparison would let analyst(3) satisfy editor(2),
// which is exactly the wrong answer.
func (r Role) Satisfies(required Role) bool {
	switch required {
	case RoleNone:
		return true
	case RoleEditor:
		return r == RoleEditor || r == RoleAdmin
	case RoleAnalyst:
		return r == RoleAnalyst || r == RoleAdmin
	default:
		return r.Level() >= required.Level()
	}
}

// MarshalJSON encodes the role as its name.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role from its name.
func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if name == "none" || name == "" {
		*r = RoleNone
		return nil
	}
	parsed, err := ParseRole(name)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Scope is an immutable permission grant of a role within a topic.
type Scope struct {
	Topic string
	Role  Role
}

// ParseScope parses a "{topic}:{role}" string.
func ParseScope(s string) (Scope, error) {
	topic, roleName, ok := strings.Cut(s, ":")
	if !ok || topic == "" || roleName == "" {
		return Scope{}, types.NewErrorf(types.ErrInvalidRequest, "malformed scope %q, want {topic}:{role}", s)
	}
	role, err := ParseRole(roleName)
	if err != nil {
		return Scope{}, err
	}
	return Scope{Topic: topic, Role: role}, nil
}

// ParseScopes parses an ordered set of scope strings. The first malformed
// entry fails the whole set; a user with an unparseable claim set should be
// rejected, not partially trusted.
func ParseScopes(raw []string) ([]Scope, error) {
	scopes := make([]Scope, 0, len(raw))
	for _, s := range raw {
		scope, err := ParseScope(s)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

// IsGlobalAdmin reports whether the scope is the global:admin grant.
func (s Scope) IsGlobalAdmin() bool {
	return s.Topic == GlobalTopic && s.Role == RoleAdmin
}

// String returns the canonical "{topic}:{role}" form.
func (s Scope) String() string {
	return s.Topic + ":" + s.Role.String()
}

// MarshalJSON encodes the scope as its canonical string form.
func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a scope from its canonical string form.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseScope(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
