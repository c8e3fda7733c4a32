package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstone/agentrun/types"
)

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		name    string
		message string
		nav     *types.NavigationContext
		want    Category
	}{
		{"publish is editor workflow", "please publish the Q3 outlook", nil, CategoryEditorWorkflow},
		{"draft is content generation", "draft an intro on rate cuts", nil, CategoryContentGeneration},
		{"permissions question", "what can I do in equities?", nil, CategoryEntitlements},
		{"navigation", "take me to the macro dashboard", nil, CategoryNavigation},
		{"ui action", "filter by this quarter", nil, CategoryUIAction},
		{"fallback", "good morning", nil, CategoryGeneralChat},
		{"editor section biases ambiguous messages", "looks fine to me", &types.NavigationContext{Section: "editor"}, CategoryEditorWorkflow},
		{"publish beats write when both present", "write it up and publish", nil, CategoryEditorWorkflow},
	}

	c := NewKeywordClassifier(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := c.Classify(context.Background(), tt.message, tt.nav, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, intent.Category)
			assert.Greater(t, intent.Confidence, 0.0)
		})
	}
}

func TestKeywordClassifier_NavigationContextTargets(t *testing.T) {
	c := NewKeywordClassifier(nil)
	nav := &types.NavigationContext{Section: "articles", Topic: "macro", EntityID: "art-42"}

	intent, err := c.Classify(context.Background(), "summarize this article", nav, nil)
	require.NoError(t, err)
	assert.Equal(t, CategoryContentGeneration, intent.Category)
	assert.Equal(t, "macro", intent.Topic)
	assert.Equal(t, "art-42", intent.TargetID)
}

func TestWithTimeout_SlowClassifier(t *testing.T) {
	slow := Func(func(ctx context.Context, message string, nav *types.NavigationContext, history []types.Message) (Intent, error) {
		select {
		case <-time.After(time.Second):
			return Intent{Category: CategoryGeneralChat}, nil
		case <-ctx.Done():
			return Intent{}, ctx.Err()
		}
	})

	bounded := WithTimeout(slow, 10*time.Millisecond)
	_, err := bounded.Classify(context.Background(), "hello", nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrClassifierUnavailable, types.GetErrorCode(err))
}

func TestWithTimeout_ErrorWrapped(t *testing.T) {
	failing := Func(func(ctx context.Context, message string, nav *types.NavigationContext, history []types.Message) (Intent, error) {
		return Intent{}, errors.New("upstream down")
	})

	bounded := WithTimeout(failing, time.Second)
	_, err := bounded.Classify(context.Background(), "hello", nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrClassifierUnavailable, types.GetErrorCode(err))
}

func TestWithTimeout_PassThrough(t *testing.T) {
	fast := Func(func(ctx context.Context, message string, nav *types.NavigationContext, history []types.Message) (Intent, error) {
		return Intent{Category: CategoryNavigation, Confidence: 0.9}, nil
	})

	bounded := WithTimeout(fast, time.Second)
	intent, err := bounded.Classify(context.Background(), "go to macro", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, CategoryNavigation, intent.Category)
}
