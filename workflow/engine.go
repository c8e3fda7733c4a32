package workflow

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/quillstone/agentrun/types"
)

// DefaultMaxIterations bounds the node hops of a single invocation.
const DefaultMaxIterations = 25

// NodeFunc is one step of the graph. It mutates the state it is given and
// names the next node, or raises a suspension to pause the workflow.
type NodeFunc func(ctx context.Context, state *AgentState) (NodeResult, error)

// NodeResult is the outcome of one node execution. Next and Suspend are
// mutually exclusive; an empty Next with no suspension terminates the run.
type NodeResult struct {
	Next    string
	Suspend *Suspension
}

// Suspension pauses a workflow pending a human decision. The engine stamps
// Node so the run can later re-enter at that node's successor.
type Suspension struct {
	Node      string `json:"node"`
	Reason    string `json:"reason"`
	ArticleID string `json:"article_id"`
	Topic     string `json:"topic"`
}

// Outcome is the result of a completed or suspended run.
type Outcome struct {
	State      *AgentState
	Suspension *Suspension
}

// Suspended reports whether the run paused instead of completing.
func (o *Outcome) Suspended() bool {
	return o != nil && o.Suspension != nil
}

// Engine executes a static graph of nodes. The graph is assembled at
// startup with RegisterNode and frozen by Compile; after that the engine
// holds no mutable state and any number of invocations may run on it
// concurrently, each on its own AgentState.
type Engine struct {
	mu       sync.RWMutex
	nodes    map[string]NodeFunc
	succ     map[string]string
	entry    string
	compiled bool

	maxIterations int
	logger        *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIterations overrides the per-invocation node hop limit.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// NewEngine creates an empty, uncompiled engine.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		nodes:         make(map[string]NodeFunc),
		succ:          make(map[string]string),
		maxIterations: DefaultMaxIterations,
		logger:        logger.With(zap.String("component", "workflow_engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterNode adds a node to the graph. Registration is rejected once the
// graph is compiled.
func (e *Engine) RegisterNode(id string, fn NodeFunc) error {
	if id == "" || fn == nil {
		return types.NewError(types.ErrInvalidState, "node needs an id and a function")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.compiled {
		return types.NewErrorf(types.ErrGraphCompiled, "cannot register node %s after compile", id)
	}
	if _, exists := e.nodes[id]; exists {
		return types.NewErrorf(types.ErrInvalidState, "node %s already registered", id)
	}
	e.nodes[id] = fn
	return nil
}

// SetSuccessor records the static resume successor of a node. When a run
// suspends at the node, RunFrom re-enters the graph at the successor.
func (e *Engine) SetSuccessor(node, next string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.compiled {
		return types.NewErrorf(types.ErrGraphCompiled, "cannot set successor of %s after compile", node)
	}
	e.succ[node] = next
	return nil
}

// SetEntry names the first node of every run.
func (e *Engine) SetEntry(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.compiled {
		return types.NewError(types.ErrGraphCompiled, "cannot set entry after compile")
	}
	e.entry = id
	return nil
}

// Compile validates and freezes the graph.
func (e *Engine) Compile() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.compiled {
		return types.NewError(types.ErrGraphCompiled, "graph already compiled")
	}
	if len(e.nodes) == 0 {
		return types.NewError(types.ErrInvalidState, "graph has no nodes")
	}
	if _, ok := e.nodes[e.entry]; !ok {
		return types.NewErrorf(types.ErrInvalidState, "entry node %s is not registered", e.entry)
	}
	for node, next := range e.succ {
		if _, ok := e.nodes[node]; !ok {
			return types.NewErrorf(types.ErrInvalidState, "successor declared for unknown node %s", node)
		}
		if _, ok := e.nodes[next]; !ok {
			return types.NewErrorf(types.ErrInvalidState, "node %s has unknown successor %s", node, next)
		}
	}
	e.compiled = true

	e.logger.Info("workflow graph compiled",
		zap.Int("nodes", len(e.nodes)),
		zap.String("entry", e.entry),
	)
	return nil
}

// Successor returns the static resume successor of a node.
func (e *Engine) Successor(node string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	next, ok := e.succ[node]
	return next, ok
}

// Run executes the graph from the entry node.
func (e *Engine) Run(ctx context.Context, state *AgentState) (*Outcome, error) {
	return e.run(ctx, state, e.entry)
}

// RunFrom executes the graph starting at the given node. Resume paths use
// it to re-enter at the successor of the node that suspended.
func (e *Engine) RunFrom(ctx context.Context, state *AgentState, node string) (*Outcome, error) {
	return e.run(ctx, state, node)
}

func (e *Engine) run(ctx context.Context, state *AgentState, start string) (*Outcome, error) {
	e.mu.RLock()
	compiled := e.compiled
	e.mu.RUnlock()
	if !compiled {
		return nil, types.NewError(types.ErrInvalidState, "graph is not compiled")
	}
	if state == nil {
		return nil, types.NewError(types.ErrInvalidState, "nil state")
	}

	current := start
	for current != "" {
		if err := ctx.Err(); err != nil {
			return nil, types.NewError(types.ErrInternalError, "workflow cancelled").WithCause(err)
		}
		if state.Iterations >= e.maxIterations {
			e.logger.Error("iteration limit reached",
				zap.String("thread_id", state.ThreadID),
				zap.String("node", current),
				zap.Int("iterations", state.Iterations),
			)
			return nil, types.NewErrorf(types.ErrIterationLimit, "workflow exceeded %d iterations", e.maxIterations)
		}

		fn, ok := e.nodes[current]
		if !ok {
			return nil, types.NewErrorf(types.ErrInvalidState, "transition to unknown node %s", current)
		}

		state.Iterations++
		result, err := fn(ctx, state)
		if err != nil {
			e.logger.Error("node failed",
				zap.String("thread_id", state.ThreadID),
				zap.String("node", current),
				zap.Error(err),
			)
			return nil, err
		}
		if result.Suspend != nil && result.Next != "" {
			return nil, types.NewErrorf(types.ErrInvalidState, "node %s returned both a transition and a suspension", current)
		}

		if result.Suspend != nil {
			result.Suspend.Node = current
			e.logger.Info("workflow suspended",
				zap.String("thread_id", state.ThreadID),
				zap.String("node", current),
				zap.String("reason", result.Suspend.Reason),
			)
			return &Outcome{State: state, Suspension: result.Suspend}, nil
		}

		current = result.Next
	}

	state.Terminal = true
	return &Outcome{State: state}, nil
}
