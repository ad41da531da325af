package usecase

import (
	"context"

	"marketplace-chat/dto"
	"marketplace-chat/dto/req"
	"marketplace-chat/storage"
)

type MessageUsecase interface {
	SendMessage(ctx context.Context, actorID string, request *req.SendMessageRequest, attachment *storage.Attachment) (dto.Message, error)
	EditMessage(ctx context.Context, actorID, messageID string, request *req.EditMessageRequest) (dto.Message, error)
	DeleteMessage(ctx context.Context, actorID, messageID string) (dto.DeletePayload, error)
}
