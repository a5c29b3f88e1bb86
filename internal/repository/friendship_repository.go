package repository

import (
	"context"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"

	"gorm.io/gorm"
)

type FriendshipRepository interface {
	Create(ctx context.Context, f *domain.Friendship) error
	// AcceptedFriendIDs returns the other side of every accepted friendship
	// the user takes part in, in either direction.
	AcceptedFriendIDs(ctx context.Context, userID uint) ([]uint, error)
}

type GormFriendshipRepository struct{ db *gorm.DB }

func NewFriendshipRepository(db *gorm.DB) FriendshipRepository {
	return &GormFriendshipRepository{db: db}
}

func (r *GormFriendshipRepository) Create(ctx context.Context, f *domain.Friendship) error {
	if f.Status == "" {
		f.Status = domain.FriendshipPending
	}
	err := r.db.WithContext(ctx).Create(f).Error
	record(ctx, "friendship", "create", err)
	return err
}

func (r *GormFriendshipRepository) AcceptedFriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	var rows []domain.Friendship
	err := r.db.WithContext(ctx).
		Select("requester_id", "addressee_id").
		Where("status = ? AND (requester_id = ? OR addressee_id = ?)", domain.FriendshipAccepted, userID, userID).
		Find(&rows).Error
	record(ctx, "friendship", "accepted_friend_ids", err)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(rows))
	for _, f := range rows {
		if f.RequesterID == userID {
			ids = append(ids, f.AddresseeID)
		} else {
			ids = append(ids, f.RequesterID)
		}
	}
	return ids, nil
}
