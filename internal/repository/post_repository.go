package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/feedcore/internal/model"
)

type PostRepository interface {
	GetByID(ctx context.Context, id string) (*model.Post, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.Post, error)
	// ListRecentByAuthor 拉模式读：某作者 since 之后的最近 limit 条
	ListRecentByAuthor(ctx context.Context, authorID string, since time.Time, limit int) ([]*model.Post, error)
	IncrLike(ctx context.Context, id string) error
	IncrView(ctx context.Context, id string) error
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var res []*model.Post
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *postRepository) ListRecentByAuthor(ctx context.Context, authorID string, since time.Time, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).
		Where("author_id = ? AND created_at > ?", authorID, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *postRepository) IncrLike(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Post{}).
		Where("id = ?", id).
		UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
}

func (r *postRepository) IncrView(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Post{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}
