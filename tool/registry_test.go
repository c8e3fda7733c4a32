package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstone/agentrun/auth"
	"github.com/quillstone/agentrun/types"
)

func newUser(t *testing.T, scopes ...string) *auth.UserContext {
	t.Helper()
	user, err := auth.NewUserContext("u-test", scopes)
	require.NoError(t, err)
	return user
}

func noopHandler(ctx context.Context, params map[string]any, user *auth.UserContext) (any, error) {
	return "ok", nil
}

func seedRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Tool{
		Name: "search_articles", Handler: noopHandler,
		RequiredRole: auth.RoleReader, TopicScoped: true,
	}))
	require.NoError(t, r.Register(Tool{
		Name: "draft_article", Handler: noopHandler,
		RequiredRole: auth.RoleAnalyst, TopicScoped: true,
	}))
	require.NoError(t, r.Register(Tool{
		Name: "publish_article", Handler: noopHandler,
		RequiredRole: auth.RoleEditor, TopicScoped: true, RequiresApproval: true,
	}))
	require.NoError(t, r.Register(Tool{
		Name: "manage_entitlements", Handler: noopHandler,
		RequiredRole: auth.RoleAdmin, GlobalAdminOverride: true,
	}))
	return r
}

func toolNames(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

func TestRegistry_Filter(t *testing.T) {
	r := seedRegistry(t)

	tests := []struct {
		name   string
		scopes []string
		topic  string
		want   []string
	}{
		{"analyst sees read and draft", []string{"macro:analyst"}, "macro", []string{"draft_article", "search_articles"}},
		{"editor sees read and publish", []string{"macro:editor"}, "macro", []string{"publish_article", "search_articles"}},
		{"topic admin sees all topic tools", []string{"macro:admin"}, "macro", []string{"draft_article", "publish_article", "search_articles"}},
		{"global admin sees everything", []string{"global:admin"}, "macro", []string{"draft_article", "manage_entitlements", "publish_article", "search_articles"}},
		{"wrong topic sees nothing", []string{"macro:analyst"}, "equities", nil},
		{"no scopes sees nothing", nil, "macro", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := newUser(t, tt.scopes...)
			got := toolNames(r.Filter(user, tt.topic))
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// Deny-by-default: anything outside the filtered set must also fail when
// invoked directly by name.
func TestRegistry_InvokeRechecksPermission(t *testing.T) {
	r := seedRegistry(t)
	ctx := context.Background()

	analyst := newUser(t, "macro:analyst")
	filtered := toolNames(r.Filter(analyst, "macro"))
	assert.NotContains(t, filtered, "publish_article")

	_, err := r.Invoke(ctx, "publish_article", nil, analyst, "macro")
	require.Error(t, err)
	assert.Equal(t, types.ErrToolNotPermitted, types.GetErrorCode(err))

	// Every filtered-in tool is invocable; every other tool is not.
	for _, name := range []string{"search_articles", "draft_article", "publish_article", "manage_entitlements"} {
		_, err := r.Invoke(ctx, name, nil, analyst, "macro")
		if contains(filtered, name) {
			assert.NoError(t, err, "tool %s", name)
		} else {
			assert.Equal(t, types.ErrToolNotPermitted, types.GetErrorCode(err), "tool %s", name)
		}
	}
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	r := seedRegistry(t)
	user := newUser(t, "global:admin")

	_, err := r.Invoke(context.Background(), "no_such_tool", nil, user, "macro")
	require.Error(t, err)
	assert.Equal(t, types.ErrToolNotPermitted, types.GetErrorCode(err))
}

func TestRegistry_InvokeNilUser(t *testing.T) {
	r := seedRegistry(t)

	_, err := r.Invoke(context.Background(), "search_articles", nil, nil, "macro")
	assert.Equal(t, types.ErrToolNotPermitted, types.GetErrorCode(err))
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry(nil)

	assert.Error(t, r.Register(Tool{Handler: noopHandler}))
	assert.Error(t, r.Register(Tool{Name: "x"}))

	require.NoError(t, r.Register(Tool{Name: "x", Handler: noopHandler}))
	assert.Error(t, r.Register(Tool{Name: "x", Handler: noopHandler}))
}

func TestRegistry_TopicScopedNeedsTopic(t *testing.T) {
	r := seedRegistry(t)
	user := newUser(t, "macro:analyst")

	_, err := r.Invoke(context.Background(), "search_articles", nil, user, "")
	assert.Equal(t, types.ErrToolNotPermitted, types.GetErrorCode(err))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
