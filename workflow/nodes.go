package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quillstone/agentrun/auth"
	"github.com/quillstone/agentrun/classify"
	"github.com/quillstone/agentrun/types"
)

// Node identifiers of the content graph.
const (
	NodeRouter            = "router"
	NodeNavigation        = "navigation"
	NodeUIAction          = "ui_action"
	NodeContentGeneration = "content_generation"
	NodeEditorWorkflow    = "editor_workflow"
	NodeEditorFinalize    = "editor_finalize"
	NodeGeneralChat       = "general_chat"
	NodeEntitlements      = "entitlements"
	NodeResponseBuilder   = "response_builder"
)

// handlerRoutes maps a classified intent category to its handler node.
var handlerRoutes = map[classify.Category]string{
	classify.CategoryNavigation:        NodeNavigation,
	classify.CategoryUIAction:          NodeUIAction,
	classify.CategoryContentGeneration: NodeContentGeneration,
	classify.CategoryEditorWorkflow:    NodeEditorWorkflow,
	classify.CategoryGeneralChat:       NodeGeneralChat,
	classify.CategoryEntitlements:      NodeEntitlements,
}

// searchLimit caps related-article lookups in the generation handler.
const searchLimit = 5

// RoutingReasonFallback marks a run that degraded to general chat because
// classification failed.
const RoutingReasonFallback = "classifier_unavailable"

// GraphDeps are the collaborators the content graph nodes close over.
type GraphDeps struct {
	Classifier classify.Classifier
	Content    ContentStore
	Search     SearchIndex
	Logger     *zap.Logger
}

// NewContentGraph assembles and compiles the standard content workflow
// graph: router in front, one node per intent category, a finalize node on
// the resume path, and a response builder at the end.
func NewContentGraph(deps GraphDeps, opts ...Option) (*Engine, error) {
	if deps.Classifier == nil {
		return nil, types.NewError(types.ErrInvalidState, "content graph needs a classifier")
	}
	if deps.Content == nil {
		return nil, types.NewError(types.ErrInvalidState, "content graph needs a content store")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger.With(zap.String("component", "content_graph"))

	e := NewEngine(deps.Logger, opts...)

	nodes := map[string]NodeFunc{
		NodeRouter:            routerNode(deps.Classifier, logger),
		NodeNavigation:        navigationNode(),
		NodeUIAction:          uiActionNode(),
		NodeContentGeneration: contentGenerationNode(deps.Content, deps.Search, logger),
		NodeEditorWorkflow:    editorWorkflowNode(deps.Content, logger),
		NodeEditorFinalize:    editorFinalizeNode(deps.Content, logger),
		NodeGeneralChat:       generalChatNode(),
		NodeEntitlements:      entitlementsNode(),
		NodeResponseBuilder:   responseBuilderNode(),
	}
	for id, fn := range nodes {
		if err := e.RegisterNode(id, fn); err != nil {
			return nil, err
		}
	}

	if err := e.SetEntry(NodeRouter); err != nil {
		return nil, err
	}
	// A run suspended inside the editor workflow re-enters at finalize,
	// which applies the reviewer's decision.
	if err := e.SetSuccessor(NodeEditorWorkflow, NodeEditorFinalize); err != nil {
		return nil, err
	}
	if err := e.Compile(); err != nil {
		return nil, err
	}
	return e, nil
}

// routerNode classifies the inbound message and dispatches to the matching
// handler. Classifier failure is not fatal: the run degrades to general
// chat and records why.
func routerNode(classifier classify.Classifier, logger *zap.Logger) NodeFunc {
	return func(ctx context.Context, state *AgentState) (NodeResult, error) {
		intent, err := classifier.Classify(ctx, state.LastUserMessage(), state.Nav, state.RecentHistory(6))
		if err != nil || !intent.Category.Valid() {
			logger.Warn("classification degraded to general chat",
				zap.String("thread_id", state.ThreadID),
				zap.Error(err),
			)
			state.Intent = &classify.Intent{Category: classify.CategoryGeneralChat}
			state.Handler = NodeGeneralChat
			state.RoutingReason = RoutingReasonFallback
			return NodeResult{Next: NodeGeneralChat}, nil
		}

		next := handlerRoutes[intent.Category]
		state.Intent = &intent
		state.Handler = next
		state.RoutingReason = fmt.Sprintf("classified as %s", intent.Category)
		return NodeResult{Next: next}, nil
	}
}

func navigationNode() NodeFunc {
	return func(ctx context.Context, state *AgentState) (NodeResult, error) {
		target := state.Topic()
		if state.Intent != nil && state.Intent.TargetID != "" {
			target = state.Intent.TargetID
		}
		state.UIDirective = &UIDirective{Action: "navigate", Target: target}
		state.ResponseText = fmt.Sprintf("Taking you to %s.", orDefault(target, "the home page"))
		return NodeResult{Next: NodeResponseBuilder}, nil
	}
}

func uiActionNode() NodeFunc {
	return func(ctx context.Context, state *AgentState) (NodeResult, error) {
		var target string
		if state.Intent != nil {
			target = state.Intent.TargetID
		}
		state.UIDirective = &UIDirective{
			Action: "ui_action",
			Target: target,
			Params: map[string]string{"topic": state.Topic()},
		}
		state.ResponseText = "Done."
		return NodeResult{Next: NodeResponseBuilder}, nil
	}
}

// contentGenerationNode drafts an article for the request topic. Drafting
// needs analyst standing on the topic; the related-content lookup and the
// draft write run concurrently.
func contentGenerationNode(content ContentStore, search SearchIndex, logger *zap.Logger) NodeFunc {
	return func(ctx context.Context, state *AgentState) (NodeResult, error) {
		topic := state.Topic()
		if topic == "" {
			state.ResponseText = "Which topic should this content be about?"
			return NodeResult{Next: NodeResponseBuilder}, nil
		}
		if state.User == nil || !state.User.Permitted(topic, auth.RoleAnalyst) {
			return NodeResult{}, types.NewErrorf(types.ErrPermissionDenied,
				"drafting content for %s requires analyst access", topic)
		}

		request := state.LastUserMessage()
		var (
			related []Article
			draft   Article
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if search == nil {
				return nil
			}
			found, err := search.Search(gctx, topic, request, searchLimit)
			if err != nil {
				// Related content is garnish, not a dependency.
				logger.Warn("related content lookup failed",
					zap.String("topic", topic), zap.Error(err))
				return nil
			}
			related = found
			return nil
		})
		g.Go(func() error {
			created, err := content.CreateDraft(gctx, Article{
				Topic:    topic,
				Title:    draftTitle(request),
				Body:     request,
				AuthorID: state.User.UserID(),
				Status:   ArticleDraft,
			})
			if err != nil {
				return types.NewError(types.ErrInternalError, "failed to create draft").WithCause(err)
			}
			draft = created
			return nil
		})
		if err := g.Wait(); err != nil {
			return NodeResult{}, err
		}

		state.PendingArticleID = draft.ID
		for _, a := range related {
			state.Entities = append(state.Entities, a.ID)
		}
		state.ResponseText = fmt.Sprintf("Draft %s created for %s.", draft.ID, topic)
		if len(related) > 0 {
			state.ResponseText += fmt.Sprintf(" Found %d related articles.", len(related))
		}
		return NodeResult{Next: NodeResponseBuilder}, nil
	}
}

// editorWorkflowNode stages an article for publication. Publishing needs
// editor standing on the topic and always pauses for a human decision; the
// node never publishes directly.
func editorWorkflowNode(content ContentStore, logger *zap.Logger) NodeFunc {
	return func(ctx context.Context, state *AgentState) (NodeResult, error) {
		topic := state.Topic()
		if state.User == nil || topic == "" || !state.User.Permitted(topic, auth.RoleEditor) {
			return NodeResult{}, types.NewErrorf(types.ErrPermissionDenied,
				"publishing in %s requires editor access", topic)
		}

		articleID := state.PendingArticleID
		if state.Intent != nil && state.Intent.TargetID != "" {
			articleID = state.Intent.TargetID
		}
		if articleID == "" {
			state.ResponseText = "Which article should be published?"
			return NodeResult{Next: NodeResponseBuilder}, nil
		}

		article, err := content.Get(ctx, articleID)
		if err != nil {
			return NodeResult{}, types.NewErrorf(types.ErrNotFound, "article %s not found", articleID).WithCause(err)
		}
		if article.Status == ArticlePublished {
			state.ResponseText = fmt.Sprintf("Article %s is already published.", articleID)
			return NodeResult{Next: NodeResponseBuilder}, nil
		}
		if err := content.SetStatus(ctx, articleID, ArticlePendingReview); err != nil {
			return NodeResult{}, types.NewError(types.ErrInternalError, "failed to stage article for review").WithCause(err)
		}

		state.PendingArticleID = articleID
		logger.Info("publication staged for approval",
			zap.String("thread_id", state.ThreadID),
			zap.String("article_id", articleID),
			zap.String("topic", topic),
		)
		return NodeResult{Suspend: &Suspension{
			Reason:    "publish_approval",
			ArticleID: articleID,
			Topic:     topic,
		}}, nil
	}
}

// editorFinalizeNode applies the reviewer's decision after a resume. A run
// that reaches it without a decision just falls through to the response
// builder.
func editorFinalizeNode(content ContentStore, logger *zap.Logger) NodeFunc {
	return func(ctx context.Context, state *AgentState) (NodeResult, error) {
		if state.ResumeDecision == "" {
			return NodeResult{Next: NodeResponseBuilder}, nil
		}
		if !state.ResumeDecision.Valid() {
			return NodeResult{}, types.NewErrorf(types.ErrInvalidState,
				"unknown resume decision %q", state.ResumeDecision)
		}
		if state.PendingArticleID == "" {
			return NodeResult{}, types.NewError(types.ErrInvalidState, "resume decision without a pending article")
		}

		switch state.ResumeDecision {
		case DecisionApprove:
			if err := content.Publish(ctx, state.PendingArticleID); err != nil {
				return NodeResult{}, types.NewError(types.ErrInternalError, "failed to publish article").WithCause(err)
			}
			state.ResponseText = fmt.Sprintf("Article %s has been published.", state.PendingArticleID)
		case DecisionReject:
			if err := content.SetStatus(ctx, state.PendingArticleID, ArticleDraft); err != nil {
				return NodeResult{}, types.NewError(types.ErrInternalError, "failed to return article to draft").WithCause(err)
			}
			state.ResponseText = fmt.Sprintf("Publication of %s was rejected; it is back in draft.", state.PendingArticleID)
		}

		logger.Info("publication decision applied",
			zap.String("thread_id", state.ThreadID),
			zap.String("article_id", state.PendingArticleID),
			zap.String("decision", string(state.ResumeDecision)),
		)
		return NodeResult{Next: NodeResponseBuilder}, nil
	}
}

func generalChatNode() NodeFunc {
	return func(ctx context.Context, state *AgentState) (NodeResult, error) {
		message := strings.TrimSpace(state.LastUserMessage())
		if message == "" {
			state.ResponseText = "How can I help?"
		} else {
			state.ResponseText = fmt.Sprintf("I can help with navigation, drafting, and publishing. You said: %s", message)
		}
		return NodeResult{Next: NodeResponseBuilder}, nil
	}
}

// entitlementsNode reports the caller's own standing. Inspecting other
// users is an admin operation handled by the entitlements tool, not here.
func entitlementsNode() NodeFunc {
	return func(ctx context.Context, state *AgentState) (NodeResult, error) {
		if state.User == nil {
			return NodeResult{}, types.NewError(types.ErrAuthentication, "no authenticated user")
		}

		topics := state.User.Topics()
		sort.Strings(topics)
		if len(topics) == 0 {
			state.ResponseText = "You have no topic entitlements."
			return NodeResult{Next: NodeResponseBuilder}, nil
		}
		parts := make([]string, 0, len(topics))
		for _, topic := range topics {
			parts = append(parts, fmt.Sprintf("%s: %s", topic, state.User.TopicRole(topic)))
		}
		state.ResponseText = "Your access: " + strings.Join(parts, ", ")
		return NodeResult{Next: NodeResponseBuilder}, nil
	}
}

// responseBuilderNode is the terminal node: it guarantees a non-empty
// response and records the assistant turn.
func responseBuilderNode() NodeFunc {
	return func(ctx context.Context, state *AgentState) (NodeResult, error) {
		if state.ResponseText == "" {
			state.ResponseText = "Sorry, I could not work out how to help with that."
		}
		state.AppendAssistant(state.ResponseText)
		return NodeResult{}, nil
	}
}

func draftTitle(request string) string {
	const max = 60
	title := strings.TrimSpace(request)
	if title == "" {
		return "Untitled draft"
	}
	if len(title) > max {
		title = title[:max]
	}
	return title
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
