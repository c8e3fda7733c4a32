// Package agentrun provides a top-level convenience entry point for
// assembling the orchestration runtime with minimal boilerplate.
//
// Usage:
//
//	import "github.com/quillstone/agentrun"
//
//	rt, err := agentrun.New()
//	rt, err := agentrun.New(agentrun.WithClassifier(myClassifier), agentrun.WithLogger(logger))
//
// The default assembly is fully in-process: keyword classification,
// in-memory conversation memory, checkpoints, and approvals. Production
// deployments that need Redis or a relational approval ledger should wire
// the stores explicitly through [orchestrator.NewRuntime].
package agentrun

import (
	"time"

	"go.uber.org/zap"

	"github.com/quillstone/agentrun/approval"
	"github.com/quillstone/agentrun/checkpoint"
	"github.com/quillstone/agentrun/classify"
	"github.com/quillstone/agentrun/memory"
	"github.com/quillstone/agentrun/orchestrator"
	"github.com/quillstone/agentrun/tool"
	"github.com/quillstone/agentrun/workflow"
)

// Runtime is the assembled orchestration runtime.
type Runtime = orchestrator.Runtime

// DefaultClassifierTimeout bounds every classifier call made by a Runtime
// built with [New]. A classifier that misses the deadline degrades the turn
// to the general-chat fallback instead of hanging it.
const DefaultClassifierTimeout = 2 * time.Second

type options struct {
	logger            *zap.Logger
	classifier        classify.Classifier
	classifierTimeout time.Duration
	content           *workflow.InMemoryContentStore
	registry          *tool.Registry
}

// Option configures the runtime created by [New].
type Option func(*options)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClassifier replaces the built-in keyword classifier. The classifier
// still runs under the timeout guard.
func WithClassifier(c classify.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithClassifierTimeout overrides [DefaultClassifierTimeout].
func WithClassifierTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.classifierTimeout = d
		}
	}
}

// WithContentStore shares a content store with the caller.
func WithContentStore(s *workflow.InMemoryContentStore) Option {
	return func(o *options) { o.content = s }
}

// WithToolRegistry installs a pre-built tool catalogue.
func WithToolRegistry(r *tool.Registry) Option {
	return func(o *options) { o.registry = r }
}

// New assembles a Runtime with in-process defaults.
func New(opts ...Option) (*Runtime, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.content == nil {
		o.content = workflow.NewInMemoryContentStore()
	}
	if o.classifier == nil {
		o.classifier = classify.NewKeywordClassifier(o.logger)
	}
	if o.classifierTimeout <= 0 {
		o.classifierTimeout = DefaultClassifierTimeout
	}

	engine, err := workflow.NewContentGraph(workflow.GraphDeps{
		Classifier: classify.WithTimeout(o.classifier, o.classifierTimeout),
		Content:    o.content,
		Search:     o.content,
		Logger:     o.logger,
	})
	if err != nil {
		return nil, err
	}

	coordinator := approval.NewCoordinator(
		approval.NewMemoryStore(),
		checkpoint.NewMemoryStore(o.logger),
		o.logger,
	)

	return orchestrator.NewRuntime(orchestrator.Deps{
		Engine:      engine,
		Coordinator: coordinator,
		Memory:      memory.NewInMemoryStore(memory.Config{}, o.logger),
		Tools:       o.registry,
		Logger:      o.logger,
	})
}
