package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/district-feed/internal/model"
)

// DefaultApprovedLimit 公开 feed 的固定窗口
const DefaultApprovedLimit = 100

var ErrPostNotFound = errors.New("post not found")

// PostRepository 帖子仓储。所有写操作对其它组件而言都是不可分割的。
type PostRepository interface {
	// NextID 发放一个新 id，返回前已持久化推进后的序列
	NextID(ctx context.Context) (int64, error)

	// Create 在同一事务内分配 id 并写入帖子（nextId + insert 作为一个单元）
	Create(ctx context.Context, post *model.Post) error

	// Insert 写入一个已带 id 的完整帖子
	Insert(ctx context.Context, post *model.Post) error

	// Find 不存在时返回 ErrPostNotFound
	Find(ctx context.Context, id int64) (*model.Post, error)

	// UpdateStatus 仅当帖子仍为 pending 时设置状态。
	// applied=false 表示帖子已是终态，返回的是现有帖子。
	UpdateStatus(ctx context.Context, id int64, status model.Status) (post *model.Post, applied bool, err error)

	// ListPending 按创建时间倒序
	ListPending(ctx context.Context, limit int) ([]*model.Post, error)

	// ListApproved 按创建时间倒序，category 为空时不过滤，limit 不超过 DefaultApprovedLimit
	ListApproved(ctx context.Context, category model.Category, limit int) ([]*model.Post, error)
}

// postRepository 单写多读：写操作持有写锁，读操作持有读锁，读不会看到写了一半的状态
type postRepository struct {
	db *gorm.DB
	mu sync.RWMutex
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

// InitSchema 建表并在缺失时创建空序列
func InitSchema(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&model.Post{}, &model.Sequence{}); err != nil {
		return fmt.Errorf("failed to migrate posts tables: %w", err)
	}
	seq := &model.Sequence{Name: model.PostSequence, Value: 1}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(seq).Error; err != nil {
		return fmt.Errorf("failed to seed post sequence: %w", err)
	}
	return nil
}

func (r *postRepository) NextID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = nextID(tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := nextID(tx)
		if err != nil {
			return err
		}
		post.ID = id
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("inserting post %d: %w", id, err)
		}
		return nil
	})
}

func (r *postRepository) Insert(ctx context.Context, post *model.Post) error {
	if post.ID <= 0 {
		return fmt.Errorf("inserting post: %w", model.ErrInvalidPostID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("inserting post %d: %w", post.ID, err)
	}
	return nil
}

func (r *postRepository) Find(ctx context.Context, id int64) (*model.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return find(r.db.WithContext(ctx), id)
}

func (r *postRepository) UpdateStatus(ctx context.Context, id int64, status model.Status) (*model.Post, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		post    *model.Post
		applied bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 条件更新：只有 pending 才能迁移，终态不可再变
		res := tx.Model(&model.Post{}).
			Where("id = ? AND status = ?", id, model.StatusPending).
			Update("status", status)
		if res.Error != nil {
			return fmt.Errorf("updating post %d status: %w", id, res.Error)
		}
		applied = res.RowsAffected == 1

		var err error
		post, err = find(tx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return post, applied, nil
}

func (r *postRepository) ListPending(ctx context.Context, limit int) ([]*model.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var posts []*model.Post
	err := r.db.WithContext(ctx).
		Where("status = ?", model.StatusPending).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending posts: %w", err)
	}
	return posts, nil
}

func (r *postRepository) ListApproved(ctx context.Context, category model.Category, limit int) ([]*model.Post, error) {
	if limit <= 0 || limit > DefaultApprovedLimit {
		limit = DefaultApprovedLimit
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := r.db.WithContext(ctx).Where("status = ?", model.StatusApproved)
	if category != "" {
		q = q.Where("category = ?", category)
	}

	var posts []*model.Post
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("listing approved posts: %w", err)
	}
	return posts, nil
}

// nextID 必须在事务内调用
func nextID(tx *gorm.DB) (int64, error) {
	res := tx.Model(&model.Sequence{}).
		Where("name = ?", model.PostSequence).
		Update("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("advancing post sequence: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return 0, fmt.Errorf("advancing post sequence: expected 1 row to be affected, got %d", res.RowsAffected)
	}

	var seq model.Sequence
	if err := tx.Where("name = ?", model.PostSequence).First(&seq).Error; err != nil {
		return 0, fmt.Errorf("reading post sequence: %w", err)
	}
	return seq.Value - 1, nil
}

func find(db *gorm.DB, id int64) (*model.Post, error) {
	var post model.Post
	err := db.Where("id = ?", id).First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("finding post %d: %w", id, err)
	}
	return &post, nil
}
