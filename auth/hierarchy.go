package auth

// Permitted reports whether the scope set grants the required role for the
// topic. It is a pure function: global:admin grants everything; otherwise
// only scopes naming the topic itself are considered, and any one of them
// satisfying the requirement is enough.
//
// Checking each scope individually (rather than reducing to a single max
// level first) keeps analyst/editor non-inheritance correct for users who
// hold both branches on the same topic.
func Permitted(scopes []Scope, topic string, required Role) bool {
	if required == RoleNone {
		return true
	}
	for _, s := range scopes {
		if s.IsGlobalAdmin() {
			return true
		}
	}
	if topic == "" {
		return false
	}
	for _, s := range scopes {
		if s.Topic != topic {
			continue
		}
		if s.Role.Satisfies(required) {
			return true
		}
	}
	return false
}

// EffectiveRole returns the highest-level role the scope set grants for the
// topic. global:admin counts as admin everywhere. The result is suitable for
// display and for the per-topic role map; permission checks must go through
// Permitted, which respects branch non-inheritance.
func EffectiveRole(scopes []Scope, topic string) Role {
	effective := RoleNone
	for _, s := range scopes {
		if s.IsGlobalAdmin() {
			return RoleAdmin
		}
		if s.Topic == topic && s.Role.Level() > effective.Level() {
			effective = s.Role
		}
	}
	return effective
}
