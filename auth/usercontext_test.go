package auth

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstone/agentrun/types"
)

func TestNewUserContext(t *testing.T) {
	user, err := NewUserContext("u-1", []string{"macro:analyst", "equities:reader", "global:admin"})
	require.NoError(t, err)

	assert.Equal(t, "u-1", user.UserID())
	assert.True(t, user.IsGlobalAdmin())
	assert.Equal(t, RoleAdmin, user.TopicRole("macro"))
	assert.ElementsMatch(t, []string{"macro", "equities", "global"}, user.Topics())
}

func TestNewUserContext_Invalid(t *testing.T) {
	_, err := NewUserContext("", []string{"macro:analyst"})
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))

	_, err = NewUserContext("u-1", []string{"macro"})
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))

	_, err = NewUserContext("u-1", []string{"macro:owner"})
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
}

func TestUserContext_TopicRoleIsMax(t *testing.T) {
	user, err := NewUserContext("u-2", []string{"macro:reader", "macro:analyst", "macro:editor"})
	require.NoError(t, err)

	assert.Equal(t, RoleAnalyst, user.TopicRole("macro"))
	assert.Equal(t, RoleNone, user.TopicRole("equities"))
	assert.False(t, user.IsGlobalAdmin())

	// Both branches remain individually checkable despite the max.
	assert.True(t, user.Permitted("macro", RoleEditor))
	assert.True(t, user.Permitted("macro", RoleAnalyst))
}

func TestUserContext_JSONRoundTrip(t *testing.T) {
	user, err := NewUserContext("u-3", []string{"macro:editor", "global:admin"})
	require.NoError(t, err)

	data, err := json.Marshal(user)
	require.NoError(t, err)

	var restored UserContext
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, user.UserID(), restored.UserID())
	assert.Equal(t, user.Scopes(), restored.Scopes())
	assert.True(t, restored.IsGlobalAdmin())
	assert.Equal(t, RoleAdmin, restored.TopicRole("macro"))
}

func TestUserContext_ScopesCopy(t *testing.T) {
	user, err := NewUserContext("u-4", []string{"macro:editor"})
	require.NoError(t, err)

	scopes := user.Scopes()
	scopes[0] = Scope{Topic: "macro", Role: RoleAdmin}
	assert.False(t, user.Permitted("macro", RoleAdmin))
}

func TestUserContextFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	user, err := NewUserContext("u-5", []string{"macro:reader"})
	require.NoError(t, err)

	ctx := WithUserContext(context.Background(), user)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u-5", got.UserID())
}

func TestScopeParsing(t *testing.T) {
	scope, err := ParseScope("macro:analyst")
	require.NoError(t, err)
	assert.Equal(t, "macro", scope.Topic)
	assert.Equal(t, RoleAnalyst, scope.Role)
	assert.Equal(t, "macro:analyst", scope.String())
	assert.False(t, scope.IsGlobalAdmin())

	global, err := ParseScope("global:admin")
	require.NoError(t, err)
	assert.True(t, global.IsGlobalAdmin())

	for _, bad := range []string{"", "macro", ":analyst", "macro:", "macro:supreme"} {
		_, err := ParseScope(bad)
		assert.Error(t, err, "scope %q should not parse", bad)
	}
}
