package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/district-feed/internal/model"
	"github.com/d60-Lab/district-feed/internal/repository"
	"github.com/d60-Lab/district-feed/pkg/logger"
)

var tracer = otel.Tracer("github.com/d60-Lab/district-feed/internal/service")

// Notifier 接收异步通知；实现方不得阻塞调用方
type Notifier interface {
	NotifyNewPending(post *model.Post)
	NotifyDecision(post *model.Post, actorID int64)
}

type SubmitParams struct {
	Category   model.Category
	Text       string
	Author     model.Author
	MediaRef   string
	Privileged bool
}

type DecideParams struct {
	PostID     int64
	Action     model.Action
	ActorID    int64
	Privileged bool
}

// Decision 审核结果。Applied=false 表示帖子已是终态，本次为空操作。
type Decision struct {
	Post    *model.Post
	Applied bool
}

// ModerationService 帖子生命周期：pending -> approved | rejected
type ModerationService interface {
	Submit(ctx context.Context, params SubmitParams) (*model.Post, error)
	Decide(ctx context.Context, params DecideParams) (*Decision, error)
	ListPending(ctx context.Context, limit int, privileged bool) ([]*model.Post, error)
}

type moderationService struct {
	posts    repository.PostRepository
	notifier Notifier
	now      func() time.Time
}

func NewModerationService(posts repository.PostRepository, notifier Notifier) ModerationService {
	return &moderationService{posts: posts, notifier: notifier, now: time.Now}
}

func (s *moderationService) Submit(ctx context.Context, params SubmitParams) (*model.Post, error) {
	ctx, span := tracer.Start(ctx, "moderation.Submit", trace.WithAttributes(
		attribute.String("category", string(params.Category)),
		attribute.Bool("privileged", params.Privileged),
	))
	defer span.End()

	text := strings.TrimSpace(params.Text)
	if text == "" && params.MediaRef == "" {
		return nil, fmt.Errorf("%w: text is required unless a photo is attached", ErrValidation)
	}
	if !params.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, params.Category)
	}

	post := &model.Post{
		Category:  params.Category,
		Text:      text,
		MediaRef:  params.MediaRef,
		Author:    params.Author,
		CreatedAt: s.now().UTC(),
		Status:    model.StatusPending,
		Origin:    model.OriginUser,
	}
	// 管理员的帖子直接发布，不进入审核队列
	if params.Privileged {
		post.Status = model.StatusApproved
		post.Origin = model.OriginAdmin
	}

	if err := s.posts.Create(ctx, post); err != nil {
		span.RecordError(err)
		logger.Error("storing submission failed", zap.Int64("author", params.Author.UserID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	span.SetAttributes(attribute.Int64("post_id", post.ID))

	if post.Status == model.StatusPending && s.notifier != nil {
		cp := *post
		s.notifier.NotifyNewPending(&cp)
	}
	return post, nil
}

func (s *moderationService) Decide(ctx context.Context, params DecideParams) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "moderation.Decide", trace.WithAttributes(
		attribute.Int64("post_id", params.PostID),
		attribute.String("action", string(params.Action)),
	))
	defer span.End()

	// 权限检查在任何存储访问之前，不泄露 id 是否存在
	if !params.Privileged {
		return nil, ErrForbidden
	}
	target, err := params.Action.TargetStatus()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	post, applied, err := s.posts.UpdateStatus(ctx, params.PostID, target)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		logger.Error("applying decision failed", zap.Int64("post_id", params.PostID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	span.SetAttributes(attribute.Bool("applied", applied))

	if applied && s.notifier != nil {
		cp := *post
		s.notifier.NotifyDecision(&cp, params.ActorID)
	}
	return &Decision{Post: post, Applied: applied}, nil
}

func (s *moderationService) ListPending(ctx context.Context, limit int, privileged bool) ([]*model.Post, error) {
	if !privileged {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = 10
	}
	posts, err := s.posts.ListPending(ctx, limit)
	if err != nil {
		logger.Error("listing pending posts failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return posts, nil
}
