package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"marketplace-chat/entity"
)

type ChatRepository struct {
	Repository[entity.Conversation]
}

func NewChatRepository() *ChatRepository {
	return &ChatRepository{}
}

// FindByPairKey returns nil, nil when no conversation exists for the pair.
func (repository ChatRepository) FindByPairKey(ctx context.Context, db *gorm.DB, pairKey string) (*entity.Conversation, error) {
	var chat entity.Conversation
	err := db.WithContext(ctx).Where("pair_key = ?", pairKey).Take(&chat).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// CreateIfAbsent inserts the conversation unless a row with the same pair key already exists.
// Concurrent first-contact sends race on the unique index; the loser's insert is a no-op.
func (repository ChatRepository) CreateIfAbsent(ctx context.Context, db *gorm.DB, chat *entity.Conversation) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "pair_key"}}, DoNothing: true}).
		Create(chat).Error
}

func (repository ChatRepository) FindChatByID(ctx context.Context, db *gorm.DB, id string) (*entity.Conversation, error) {
	var chat entity.Conversation
	err := db.WithContext(ctx).Where("id = ?", id).Take(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (repository ChatRepository) FindAllByUserID(ctx context.Context, db *gorm.DB, userID string) ([]entity.Conversation, error) {
	var chats []entity.Conversation

	err := db.WithContext(ctx).
		Where("user_id = ? OR counterpart_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&chats).Error

	if err != nil {
		return nil, err
	}

	return chats, nil
}

func (repository ChatRepository) TouchLastMessage(ctx context.Context, db *gorm.DB, chatID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", chatID).
		Update("last_message_at", at).Error
}
