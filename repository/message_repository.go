package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"marketplace-chat/entity"
)

type MessageRepository struct {
	Repository[entity.Message]
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

func (repository MessageRepository) FindMessageByID(ctx context.Context, db *gorm.DB, id string) (*entity.Message, error) {
	var message entity.Message
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// FindByCorrelation returns nil, nil when the sender never submitted this correlation id.
func (repository MessageRepository) FindByCorrelation(ctx context.Context, db *gorm.DB, senderID, correlationID string) (*entity.Message, error) {
	var message entity.Message
	err := db.WithContext(ctx).
		Where("sender_id = ? AND correlation_id = ?", senderID, correlationID).
		Take(&message).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// FindPage returns newest first; callers reverse for display.
func (repository MessageRepository) FindPage(ctx context.Context, db *gorm.DB, chatID string, skip, limit int) ([]entity.Message, error) {
	var messages []entity.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", chatID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(skip).
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (repository MessageRepository) FindLast(ctx context.Context, db *gorm.DB, chatID string) (*entity.Message, error) {
	var message entity.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", chatID).
		Order("created_at DESC").
		Take(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (repository MessageRepository) CountUnread(ctx context.Context, db *gorm.DB, chatID, viewerID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND seen = ?", chatID, viewerID, false).
		Count(&count).Error
	return count, err
}

// MarkSeen flips seen for every message addressed to viewerID in the conversation.
func (repository MessageRepository) MarkSeen(ctx context.Context, db *gorm.DB, chatID, viewerID string) (int64, error) {
	result := db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND seen = ?", chatID, viewerID, false).
		Update("seen", true)
	return result.RowsAffected, result.Error
}

func (repository MessageRepository) UpdateText(ctx context.Context, db *gorm.DB, message *entity.Message, text string) error {
	return db.WithContext(ctx).
		Model(message).
		Updates(map[string]interface{}{"text": text, "edited": true}).Error
}

func (repository MessageRepository) DeleteByID(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&entity.Message{}).Error
}
