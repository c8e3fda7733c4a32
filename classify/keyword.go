package classify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/quillstone/agentrun/types"
)

// categoryKeywords maps trigger phrases to categories. First match wins
// within a category; categories are checked in a fixed priority order so a
// message like "publish my draft" lands on the editor workflow rather than
// general chat.
var categoryKeywords = map[Category][]string{
	CategoryEditorWorkflow: {
		"publish", "submit for review", "approve", "reject draft",
		"save draft", "edit article", "revise", "update the article",
	},
	CategoryContentGeneration: {
		"write", "draft", "generate", "summarize", "summarise",
		"compose", "outline", "analysis of",
	},
	CategoryEntitlements: {
		"permission", "access", "entitlement", "my role", "am i allowed",
		"who can", "what can i do",
	},
	CategoryNavigation: {
		"go to", "open", "take me to", "navigate", "show me the", "where is",
	},
	CategoryUIAction: {
		"filter", "sort", "expand", "collapse", "switch to", "toggle",
	},
}

// categoryOrder is the evaluation priority for keyword matching.
var categoryOrder = []Category{
	CategoryEditorWorkflow,
	CategoryContentGeneration,
	CategoryEntitlements,
	CategoryNavigation,
	CategoryUIAction,
}

// KeywordClassifier is the built-in heuristic classifier. It scores trigger
// phrases against the lowercased message and leans on the navigation context
// to resolve the target topic.
type KeywordClassifier struct {
	logger *zap.Logger
}

// NewKeywordClassifier creates the built-in keyword classifier.
func NewKeywordClassifier(logger *zap.Logger) *KeywordClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordClassifier{
		logger: logger.With(zap.String("component", "keyword_classifier")),
	}
}

// Classify implements Classifier. It never fails; an unmatched message is
// general chat with low confidence.
func (k *KeywordClassifier) Classify(ctx context.Context, message string, nav *types.NavigationContext, history []types.Message) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}

	lowered := strings.ToLower(message)
	intent := Intent{Category: CategoryGeneralChat, Confidence: 0.3}

	for _, category := range categoryOrder {
		if phrase, ok := matchPhrase(lowered, categoryKeywords[category]); ok {
			intent.Category = category
			intent.Confidence = confidenceFor(phrase, lowered)
			break
		}
	}

	// The editor section of the UI strongly implies editor workflow even
	// when the phrasing is ambiguous.
	if nav != nil {
		if intent.Category == CategoryGeneralChat && nav.Section == "editor" {
			intent.Category = CategoryEditorWorkflow
			intent.Confidence = 0.5
		}
		intent.Topic = nav.Topic
		intent.TargetID = nav.EntityID
	}

	k.logger.Debug("classified message",
		zap.String("category", string(intent.Category)),
		zap.Float64("confidence", intent.Confidence),
	)
	return intent, nil
}

func matchPhrase(message string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(message, p) {
			return p, true
		}
	}
	return "", false
}

// confidenceFor scales confidence by how much of the message the trigger
// phrase covers, clamped to a sane band.
func confidenceFor(phrase, message string) float64 {
	if len(message) == 0 {
		return 0.5
	}
	c := 0.6 + float64(len(phrase))/float64(len(message))*0.3
	if c > 0.95 {
		c = 0.95
	}
	return c
}
