package approval

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillstone/agentrun/types"
)

// approvalModel is the relational shape of a Request.
type approvalModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	ThreadID     string `gorm:"size:64;index"`
	ArticleID    string `gorm:"size:64;index"`
	Topic        string `gorm:"size:128;index"`
	RequesterID  string `gorm:"size:64"`
	Reason       string `gorm:"size:255"`
	Status       string `gorm:"size:16;index"`
	DecidedBy    string `gorm:"size:64"`
	DecisionNote string `gorm:"size:1024"`
	CreatedAt    time.Time
	ExpiresAt    time.Time `gorm:"index"`
	DecidedAt    time.Time
}

func (approvalModel) TableName() string { return "approval_requests" }

func (m *approvalModel) toRequest() *Request {
	return &Request{
		ID:           m.ID,
		ThreadID:     m.ThreadID,
		ArticleID:    m.ArticleID,
		Topic:        m.Topic,
		RequesterID:  m.RequesterID,
		Reason:       m.Reason,
		Status:       Status(m.Status),
		DecidedBy:    m.DecidedBy,
		DecisionNote: m.DecisionNote,
		CreatedAt:    m.CreatedAt,
		ExpiresAt:    m.ExpiresAt,
		DecidedAt:    m.DecidedAt,
	}
}

func fromRequest(req *Request) *approvalModel {
	return &approvalModel{
		ID:           req.ID,
		ThreadID:     req.ThreadID,
		ArticleID:    req.ArticleID,
		Topic:        req.Topic,
		RequesterID:  req.RequesterID,
		Reason:       req.Reason,
		Status:       string(req.Status),
		DecidedBy:    req.DecidedBy,
		DecisionNote: req.DecisionNote,
		CreatedAt:    req.CreatedAt,
		ExpiresAt:    req.ExpiresAt,
		DecidedAt:    req.DecidedAt,
	}
}

// GormStore is a Store backed by a relational database. The conditional
// UPDATE in Resolve is the concurrency control: rows affected tells us
// whether this caller won the transition.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates the store and migrates its table.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&approvalModel{}); err != nil {
		return nil, types.NewError(types.ErrInternalError, "approval table migration failed").WithCause(err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "approval_store")),
	}, nil
}

var _ Store = (*GormStore)(nil)

// Create inserts a new approval request.
func (s *GormStore) Create(ctx context.Context, req *Request) error {
	if req == nil || req.ID == "" {
		return types.NewError(types.ErrInvalidState, "approval request needs an id")
	}
	if err := s.db.WithContext(ctx).Create(fromRequest(req)).Error; err != nil {
		return types.NewError(types.ErrInternalError, "approval create failed").WithCause(err)
	}
	return nil
}

// Get returns the request by ID.
func (s *GormStore) Get(ctx context.Context, id string) (*Request, error) {
	var m approvalModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "approval %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "approval lookup failed").WithCause(err)
	}
	return m.toRequest(), nil
}

// GetByThread returns the newest request for a thread, decided or not.
func (s *GormStore) GetByThread(ctx context.Context, threadID string) (*Request, error) {
	var m approvalModel
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at desc").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "no approval for thread %s", threadID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "approval lookup failed").WithCause(err)
	}
	return m.toRequest(), nil
}

// Resolve transitions the request from one status to the decision's status.
// Zero rows affected means another caller got there first.
func (s *GormStore) Resolve(ctx context.Context, id string, from Status, decision Decision) error {
	if !decision.Status.Terminal() {
		return types.NewErrorf(types.ErrInvalidState, "%s is not a terminal status", decision.Status)
	}

	res := s.db.WithContext(ctx).
		Model(&approvalModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":        string(decision.Status),
			"decided_by":    decision.DecidedBy,
			"decision_note": decision.Note,
			"decided_at":    time.Now(),
		})
	if res.Error != nil {
		return types.NewError(types.ErrInternalError, "approval resolve failed").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewErrorf(types.ErrApprovalConflict, "approval %s is no longer %s", id, from)
	}

	s.logger.Info("approval resolved",
		zap.String("approval_id", id),
		zap.String("status", string(decision.Status)),
		zap.String("decided_by", decision.DecidedBy),
	)
	return nil
}

// ListPending returns pending requests, optionally filtered by topic,
// oldest first.
func (s *GormStore) ListPending(ctx context.Context, topic string) ([]*Request, error) {
	q := s.db.WithContext(ctx).Where("status = ?", string(StatusPending))
	if topic != "" {
		q = q.Where("topic = ?", topic)
	}

	var models []approvalModel
	if err := q.Order("created_at asc").Find(&models).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "approval list failed").WithCause(err)
	}

	out := make([]*Request, len(models))
	for i := range models {
		out[i] = models[i].toRequest()
	}
	return out, nil
}

// ExpireOverdue marks pending requests past their deadline as expired and
// returns them.
func (s *GormStore) ExpireOverdue(ctx context.Context, now time.Time) ([]*Request, error) {
	var overdue []approvalModel
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(StatusPending), now).
		Find(&overdue).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "overdue scan failed").WithCause(err)
	}

	expired := make([]*Request, 0, len(overdue))
	for i := range overdue {
		decision := Decision{Status: StatusExpired, DecidedBy: "system", Note: "approval window elapsed"}
		if err := s.Resolve(ctx, overdue[i].ID, StatusPending, decision); err != nil {
			// Lost the race to a reviewer; that request is no longer ours.
			if types.IsCode(err, types.ErrApprovalConflict) {
				continue
			}
			return expired, err
		}
		req := overdue[i].toRequest()
		req.Status = StatusExpired
		expired = append(expired, req)
	}
	return expired, nil
}
