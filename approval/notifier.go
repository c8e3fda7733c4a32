package approval

import (
	"context"

	"go.uber.org/zap"
)

// Notifier announces new approval requests to reviewers. Notification is
// best effort; a failed notification never fails the suspension.
type Notifier interface {
	Notify(ctx context.Context, req *Request) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, req *Request) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// LogNotifier records approval requests in the log. It is the default when
// no reviewer channel is wired up.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a Notifier that writes to the log.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.With(zap.String("component", "approval_notifier"))}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, req *Request) error {
	n.logger.Info("approval requested",
		zap.String("approval_id", req.ID),
		zap.String("article_id", req.ArticleID),
		zap.String("topic", req.Topic),
		zap.String("requester_id", req.RequesterID),
		zap.Time("expires_at", req.ExpiresAt),
	)
	return nil
}
