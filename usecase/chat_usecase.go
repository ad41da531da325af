package usecase

import (
	"context"

	"marketplace-chat/dto"
	"marketplace-chat/dto/res"
	"marketplace-chat/entity"
)

type ChatUsecase interface {
	EnsureConversation(ctx context.Context, userID, counterpartID, storeID string) (*entity.Conversation, error)
	FindParticipantChat(ctx context.Context, actorID, chatID string) (*entity.Conversation, error)
	GetChatsByUser(ctx context.Context, actorID string) ([]dto.Conversation, error)
	GetMessagesByChatID(ctx context.Context, actorID, chatID string, skip, limit int) (res.MessagePage, error)
	MarkSeen(ctx context.Context, actorID, chatID string) (int64, error)
}
