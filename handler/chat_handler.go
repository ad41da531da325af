package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"marketplace-chat/apperror"
	"marketplace-chat/dto/req"
	"marketplace-chat/dto/res"
	"marketplace-chat/middleware"
	"marketplace-chat/usecase"
)

type ChatHandler struct {
	usecase.ChatUsecase
	*logrus.Logger
	*validator.Validate
}

func NewChatHandler(chatUsecase usecase.ChatUsecase, logger *logrus.Logger, validate *validator.Validate) *ChatHandler {
	return &ChatHandler{
		ChatUsecase: chatUsecase,
		Logger:      logger,
		Validate:    validate,
	}
}

// GetAllChat godoc
// @Summary List conversations of the current user
// @Tags Chat
// @Produce json
// @Success 200 {object} res.CommonResponse[[]dto.Conversation]
// @Router /api/v1/chats [get]
func (handler *ChatHandler) GetAllChat(c *fiber.Ctx) error {
	actorID := middleware.ActorID(c)

	chats, err := handler.ChatUsecase.GetChatsByUser(c.UserContext(), actorID)
	if err != nil {
		handler.Logger.WithError(err).Errorf("Failed to get chats of user %s", actorID)
		return err
	}
	return c.Status(fiber.StatusOK).JSON(res.OK("Successfully to Get All Chats", chats))
}

// GetMessagesByID godoc
// @Summary Get a page of chat messages, oldest first
// @Tags Chat
// @Produce json
// @Param chatId path string true "Chat ID"
// @Param skip query int false "Offset cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} res.CommonResponse[res.MessagePage]
// @Router /api/v1/chats/{chatId}/messages [get]
func (handler *ChatHandler) GetMessagesByID(c *fiber.Ctx) error {
	chatID := c.Params("chatId")

	query := new(req.PageQuery)
	if err := c.QueryParser(query); err != nil {
		return apperror.Validation("invalid paging parameters: %v", err)
	}
	if err := handler.Validate.Struct(query); err != nil {
		return apperror.Validation("invalid paging parameters: %v", err)
	}

	page, err := handler.ChatUsecase.GetMessagesByChatID(c.UserContext(), middleware.ActorID(c), chatID, query.Skip, query.Limit)
	if err != nil {
		handler.Logger.WithError(err).Error("Failed to get messages by chat ID")
		return err
	}
	return c.Status(fiber.StatusOK).JSON(res.OK("Successfully to Get Messages", page))
}

func (handler *ChatHandler) MarkSeen(c *fiber.Ctx) error {
	chatID := c.Params("chatId")

	updated, err := handler.ChatUsecase.MarkSeen(c.UserContext(), middleware.ActorID(c), chatID)
	if err != nil {
		handler.Logger.WithError(err).Errorf("Failed to mark chat %s as seen", chatID)
		return err
	}
	return c.Status(fiber.StatusOK).JSON(res.OK("Successfully to Mark Messages Seen", res.MarkSeenResponse{
		ChatID:  chatID,
		Updated: updated,
	}))
}
