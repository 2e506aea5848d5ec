package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/district-feed/internal/gateway"
	"github.com/d60-Lab/district-feed/internal/model"
	"github.com/d60-Lab/district-feed/internal/repository"
	"github.com/d60-Lab/district-feed/pkg/logger"
)

// mediaResolveConcurrency 同时解析的媒体数上限
const mediaResolveConcurrency = 8

// FeedAuthor 只暴露展示信息，不包含数字 id
type FeedAuthor struct {
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

type FeedItem struct {
	ID        int64          `json:"id"`
	Category  model.Category `json:"category,omitempty"`
	Text      string         `json:"text"`
	Author    FeedAuthor     `json:"author"`
	CreatedAt time.Time      `json:"createdAt"`
	MediaURL  string         `json:"mediaUrl,omitempty"`
}

// FeedService 公开 feed 的只读投影
type FeedService interface {
	List(ctx context.Context, category model.Category) ([]FeedItem, error)
	// MediaURL 解析已发布帖子的媒体地址；帖子不存在、未发布或无媒体时返回 ErrNotFound
	MediaURL(ctx context.Context, postID int64) (string, error)
}

type FeedOption func(*feedService)

// WithMediaProxy 解析成功后对外返回 prefix/<postID>，而不是网关的原始地址。
// 原始地址可能包含网关凭据。
func WithMediaProxy(prefix string) FeedOption {
	return func(s *feedService) { s.mediaProxy = strings.TrimRight(prefix, "/") }
}

type feedService struct {
	posts      repository.PostRepository
	resolver   gateway.MediaResolver
	limit      int
	mediaProxy string
}

// NewFeedService resolver 为 nil 时不解析媒体
func NewFeedService(posts repository.PostRepository, resolver gateway.MediaResolver, limit int, opts ...FeedOption) FeedService {
	if limit <= 0 || limit > repository.DefaultApprovedLimit {
		limit = repository.DefaultApprovedLimit
	}
	s := &feedService{posts: posts, resolver: resolver, limit: limit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *feedService) List(ctx context.Context, category model.Category) ([]FeedItem, error) {
	ctx, span := tracer.Start(ctx, "feed.List")
	defer span.End()

	posts, err := s.posts.ListApproved(ctx, category, s.limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	items := make([]FeedItem, len(posts))
	for i, p := range posts {
		items[i] = FeedItem{
			ID:        p.ID,
			Category:  p.Category,
			Text:      p.Text,
			Author:    FeedAuthor{Name: p.Author.DisplayName(), Username: p.Author.Username},
			CreatedAt: p.CreatedAt,
		}
	}
	if s.resolver == nil {
		return items, nil
	}

	// 解析失败只影响该条的 mediaUrl，不影响整个请求
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mediaResolveConcurrency)
	for i, p := range posts {
		if !p.HasMedia() {
			continue
		}
		i, ref := i, p.MediaRef
		g.Go(func() error {
			url, err := s.resolver.ResolveMediaURL(gctx, ref)
			if err != nil {
				logger.Warn("resolving media url failed", zap.Int64("post_id", items[i].ID), zap.Error(err))
				return nil
			}
			items[i].MediaURL = s.publicURL(items[i].ID, url)
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}

func (s *feedService) publicURL(postID int64, resolved string) string {
	if s.mediaProxy == "" {
		return resolved
	}
	return s.mediaProxy + "/" + strconv.FormatInt(postID, 10)
}

func (s *feedService) MediaURL(ctx context.Context, postID int64) (string, error) {
	if s.resolver == nil {
		return "", ErrNotFound
	}
	post, err := s.posts.Find(ctx, postID)
	if errors.Is(err, repository.ErrPostNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	// 未发布的帖子对外视同不存在
	if post.Status != model.StatusApproved || !post.HasMedia() {
		return "", ErrNotFound
	}
	url, err := s.resolver.ResolveMediaURL(ctx, post.MediaRef)
	if err != nil {
		logger.Warn("resolving media url failed", zap.Int64("post_id", postID), zap.Error(err))
		return "", ErrNotFound
	}
	return url, nil
}
