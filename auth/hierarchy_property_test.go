package auth

import (
	"testing"

	"pgregory.net/rapid"
)

// For any scope set and topic, an analyst requirement is granted exactly when
// the set contains global:admin, {topic}:admin, or {topic}:analyst. An editor
// grant alone must never satisfy it.
func TestPermitted_AnalystRequirementProperty(t *testing.T) {
	topics := []string{"macro", "equities", "rates", GlobalTopic}
	roles := []Role{RoleReader, RoleEditor, RoleAnalyst, RoleAdmin}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		scopes := make([]Scope, 0, n)
		for i := 0; i < n; i++ {
			scopes = append(scopes, Scope{
				Topic: rapid.SampledFrom(topics).Draw(t, "topic"),
				Role:  rapid.SampledFrom(roles).Draw(t, "role"),
			})
		}
		topic := rapid.SampledFrom([]string{"macro", "equities", "rates"}).Draw(t, "target")

		expected := false
		for _, s := range scopes {
			if s.IsGlobalAdmin() {
				expected = true
			}
			if s.Topic == topic && (s.Role == RoleAdmin || s.Role == RoleAnalyst) {
				expected = true
			}
		}

		if got := Permitted(scopes, topic, RoleAnalyst); got != expected {
			t.Fatalf("Permitted(%v, %q, analyst) = %v, want %v", scopes, topic, got, expected)
		}
	})
}

// Permission decisions agree between the pure function and a UserContext
// built from the same scopes.
func TestPermitted_UserContextAgreementProperty(t *testing.T) {
	topics := []string{"macro", "equities", GlobalTopic}
	roles := []Role{RoleReader, RoleEditor, RoleAnalyst, RoleAdmin}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(t, "n")
		raw := make([]string, 0, n)
		for i := 0; i < n; i++ {
			s := Scope{
				Topic: rapid.SampledFrom(topics).Draw(t, "topic"),
				Role:  rapid.SampledFrom(roles).Draw(t, "role"),
			}
			raw = append(raw, s.String())
		}
		user, err := NewUserContext("u-prop", raw)
		if err != nil {
			t.Fatalf("NewUserContext: %v", err)
		}

		topic := rapid.SampledFrom(topics).Draw(t, "target")
		required := rapid.SampledFrom(roles).Draw(t, "required")

		scopes, _ := ParseScopes(raw)
		if got, want := user.Permitted(topic, required), Permitted(scopes, topic, required); got != want {
			t.Fatalf("UserContext.Permitted = %v, pure Permitted = %v", got, want)
		}
	})
}
