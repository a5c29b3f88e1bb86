package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sandeepkv93/social-realtime-backend/internal/domain"

	"gorm.io/gorm"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)
	FindByPair(ctx context.Context, a, b uint) (*domain.Conversation, error)
	// GetOrCreate returns the conversation for the pair, creating it on first
	// use. Concurrent first use converges on a single row.
	GetOrCreate(ctx context.Context, a, b uint) (*domain.Conversation, error)
	// Save writes the mutable conversation state if c.Version is current.
	Save(ctx context.Context, c *domain.Conversation) error
	PartnerIDs(ctx context.Context, userID uint, excludeBlocked bool) ([]uint, error)
}

type GormConversationRepository struct{ db *gorm.DB }

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrConversationNotFound
	}
	record(ctx, "conversation", "find_by_id", err)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormConversationRepository) FindByPair(ctx context.Context, a, b uint) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.WithContext(ctx).Where("pair_key = ?", domain.PairKey(a, b)).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrConversationNotFound
	}
	record(ctx, "conversation", "find_by_pair", err)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormConversationRepository) GetOrCreate(ctx context.Context, a, b uint) (*domain.Conversation, error) {
	c, err := r.FindByPair(ctx, a, b)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}
	c = domain.NewConversation(uuid.NewString(), a, b)
	err = r.db.WithContext(ctx).Create(c).Error
	if isUniqueViolation(err) {
		record(ctx, "conversation", "create", nil)
		return r.FindByPair(ctx, a, b)
	}
	record(ctx, "conversation", "create", err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *GormConversationRepository) Save(ctx context.Context, c *domain.Conversation) error {
	expected := c.Version
	next := *c
	next.Version = expected + 1
	res := r.db.WithContext(ctx).Model(&next).
		Where("version = ?", expected).
		Select("last_message_id", "last_message_at", "unread_count", "is_blocked", "blocked_by", "blocked_at",
			"archived", "pinned", "version", "updated_at").
		Updates(&next)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		var count int64
		if err = r.db.WithContext(ctx).Model(&domain.Conversation{}).Where("id = ?", c.ID).Count(&count).Error; err == nil {
			err = ErrVersionConflict
			if count == 0 {
				err = ErrConversationNotFound
			}
		}
	}
	record(ctx, "conversation", "save", err)
	if err != nil {
		return err
	}
	c.Version = next.Version
	return nil
}

func (r *GormConversationRepository) PartnerIDs(ctx context.Context, userID uint, excludeBlocked bool) ([]uint, error) {
	q := r.db.WithContext(ctx).Model(&domain.Conversation{}).
		Select("participant_a", "participant_b").
		Where("participant_a = ? OR participant_b = ?", userID, userID)
	if excludeBlocked {
		q = q.Where("is_blocked = ?", false)
	}
	var rows []domain.Conversation
	err := q.Find(&rows).Error
	record(ctx, "conversation", "partner_ids", err)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.Other(userID))
	}
	return ids, nil
}
