package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"

	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	// MarkDelivered and MarkRead only ever move the flags forward, so a lost
	// race degrades to a no-op rather than a regression.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkAllRead marks every unread message from sender to receiver in the
	// conversation as read and returns the ids it changed.
	MarkAllRead(ctx context.Context, conversationID string, senderID, receiverID uint, at time.Time) ([]string, error)
	// SaveReactions persists Reactions if m.Version is still the stored
	// version, then bumps m.Version.
	SaveReactions(ctx context.Context, m *domain.Message) error
	// SoftDelete hides the message from lookups and history.
	SoftDelete(ctx context.Context, id string) error
	ListPage(ctx context.Context, conversationID string, page PageRequest) (PageResult[domain.Message], error)
}

type GormMessageRepository struct{ db *gorm.DB }

func NewMessageRepository(db *gorm.DB) MessageRepository { return &GormMessageRepository{db: db} }

func (r *GormMessageRepository) Create(ctx context.Context, m *domain.Message) error {
	if m.Reactions == nil {
		m.Reactions = []domain.Reaction{}
	}
	err := r.db.WithContext(ctx).Create(m).Error
	record(ctx, "message", "create", err)
	return err
}

func (r *GormMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	err := r.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrMessageNotFound
	}
	record(ctx, "message", "find_by_id", err)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *GormMessageRepository) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND is_delivered = ?", id, false).
		Updates(map[string]any{"is_delivered": true, "delivered_at": at})
	record(ctx, "message", "mark_delivered", res.Error)
	return res.RowsAffected > 0, res.Error
}

func (r *GormMessageRepository) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Message{}).
			Where("id = ? AND is_delivered = ?", id, false).
			Updates(map[string]any{"is_delivered": true, "delivered_at": at}).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Message{}).
			Where("id = ? AND is_read = ?", id, false).
			Updates(map[string]any{"is_read": true, "read_at": at})
		changed = res.RowsAffected > 0
		return res.Error
	})
	record(ctx, "message", "mark_read", err)
	return changed, err
}

func (r *GormMessageRepository) MarkAllRead(ctx context.Context, conversationID string, senderID, receiverID uint, at time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := func() *gorm.DB {
			return tx.Model(&domain.Message{}).Where(
				"conversation_id = ? AND sender_id = ? AND receiver_id = ? AND is_read = ? AND is_deleted = ?",
				conversationID, senderID, receiverID, false, false)
		}
		if err := scope().Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Model(&domain.Message{}).
			Where("id IN ? AND is_delivered = ?", ids, false).
			Updates(map[string]any{"is_delivered": true, "delivered_at": at}).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Message{}).
			Where("id IN ? AND is_read = ?", ids, false).
			Updates(map[string]any{"is_read": true, "read_at": at}).Error
	})
	record(ctx, "message", "mark_all_read", err)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormMessageRepository) SaveReactions(ctx context.Context, m *domain.Message) error {
	expected := m.Version
	next := *m
	next.Version = expected + 1
	if next.Reactions == nil {
		next.Reactions = []domain.Reaction{}
	}
	res := r.db.WithContext(ctx).Model(&next).
		Where("version = ?", expected).
		Select("reactions", "version", "updated_at").
		Updates(&next)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		var count int64
		if err = r.db.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", m.ID).Count(&count).Error; err == nil {
			err = ErrVersionConflict
			if count == 0 {
				err = ErrMessageNotFound
			}
		}
	}
	record(ctx, "message", "save_reactions", err)
	if err != nil {
		return err
	}
	m.Reactions = next.Reactions
	m.Version = next.Version
	return nil
}

func (r *GormMessageRepository) SoftDelete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_deleted": true, "updated_at": time.Now().UTC()})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrMessageNotFound
	}
	record(ctx, "message", "soft_delete", err)
	return err
}

func (r *GormMessageRepository) ListPage(ctx context.Context, conversationID string, page PageRequest) (PageResult[domain.Message], error) {
	req := page.normalize()
	base := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false)
	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		record(ctx, "message", "list_page", err)
		return PageResult[domain.Message]{}, err
	}
	var items []domain.Message
	err := base.Order("created_at DESC").Offset(req.offset()).Limit(req.PageSize).Find(&items).Error
	record(ctx, "message", "list_page", err)
	if err != nil {
		return PageResult[domain.Message]{}, err
	}
	return newPageResult(req, total, items), nil
}
