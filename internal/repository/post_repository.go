package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"

	"gorm.io/gorm"
)

type PostRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.Post, error)
	Create(ctx context.Context, post *domain.Post) error
	// SaveReactions persists Likes and Dislikes if post.Version is still the
	// stored version, then bumps post.Version.
	SaveReactions(ctx context.Context, post *domain.Post) error
}

type GormPostRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &GormPostRepository{db: db} }

func (r *GormPostRepository) FindByID(ctx context.Context, id uint) (*domain.Post, error) {
	var p domain.Post
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrPostNotFound
	}
	record(ctx, "post", "find_by_id", err)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPostRepository) Create(ctx context.Context, post *domain.Post) error {
	if post.Likes == nil {
		post.Likes = []uint{}
	}
	if post.Dislikes == nil {
		post.Dislikes = []uint{}
	}
	err := r.db.WithContext(ctx).Create(post).Error
	record(ctx, "post", "create", err)
	return err
}

func (r *GormPostRepository) SaveReactions(ctx context.Context, post *domain.Post) error {
	expected := post.Version
	next := *post
	next.Version = expected + 1
	if next.Likes == nil {
		next.Likes = []uint{}
	}
	if next.Dislikes == nil {
		next.Dislikes = []uint{}
	}
	res := r.db.WithContext(ctx).Model(&next).
		Where("version = ?", expected).
		Select("likes", "dislikes", "version", "updated_at").
		Updates(&next)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		var count int64
		if err = r.db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", post.ID).Count(&count).Error; err == nil {
			err = ErrVersionConflict
			if count == 0 {
				err = ErrPostNotFound
			}
		}
	}
	record(ctx, "post", "save_reactions", err)
	if err != nil {
		return err
	}
	post.Version = next.Version
	return nil
}
