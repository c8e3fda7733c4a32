// Package classify defines the intent model and the classifier contract the
// workflow router depends on. The default implementation is a keyword
// heuristic; model-backed classifiers plug in behind the same interface.
package classify

import (
	"context"
	"time"

	"github.com/quillstone/agentrun/types"
)

// Category is the coarse intent class a request is routed on.
type Category string

const (
	CategoryNavigation        Category = "navigation"
	CategoryUIAction          Category = "ui_action"
	CategoryContentGeneration Category = "content_generation"
	CategoryEditorWorkflow    Category = "editor_workflow"
	CategoryGeneralChat       Category = "general_chat"
	CategoryEntitlements      Category = "entitlements"
)

// Valid reports whether the category is one of the known classes.
func (c Category) Valid() bool {
	switch c {
	case CategoryNavigation, CategoryUIAction, CategoryContentGeneration,
		CategoryEditorWorkflow, CategoryGeneralChat, CategoryEntitlements:
		return true
	}
	return false
}

// Intent is the resolved intent of one request: a category plus free-form
// targeting metadata.
type Intent struct {
	Category   Category `json:"category"`
	Topic      string   `json:"topic,omitempty"`
	TargetID   string   `json:"target_id,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Classifier maps a message plus context into an intent. Implementations
// must be side-effect free and honor ctx cancellation; callers bound every
// call with a timeout.
type Classifier interface {
	Classify(ctx context.Context, message string, nav *types.NavigationContext, history []types.Message) (Intent, error)
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, message string, nav *types.NavigationContext, history []types.Message) (Intent, error)

// Classify implements Classifier.
func (f Func) Classify(ctx context.Context, message string, nav *types.NavigationContext, history []types.Message) (Intent, error) {
	return f(ctx, message, nav, history)
}

// timeoutClassifier bounds every Classify call with a deadline.
type timeoutClassifier struct {
	inner   Classifier
	timeout time.Duration
}

// WithTimeout wraps a classifier so every call is bounded by the given
// timeout. A deadline overrun surfaces as CLASSIFIER_UNAVAILABLE, which the
// router treats as a soft failure.
func WithTimeout(inner Classifier, timeout time.Duration) Classifier {
	if timeout <= 0 {
		return inner
	}
	return &timeoutClassifier{inner: inner, timeout: timeout}
}

func (c *timeoutClassifier) Classify(ctx context.Context, message string, nav *types.NavigationContext, history []types.Message) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		intent Intent
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		intent, err := c.inner.Classify(ctx, message, nav, history)
		ch <- result{intent: intent, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return Intent{}, types.NewError(types.ErrClassifierUnavailable, "classifier failed").WithCause(r.err)
		}
		return r.intent, nil
	case <-ctx.Done():
		return Intent{}, types.NewError(types.ErrClassifierUnavailable, "classifier timed out").WithCause(ctx.Err())
	}
}
