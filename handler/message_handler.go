package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"marketplace-chat/apperror"
	"marketplace-chat/dto/req"
	"marketplace-chat/dto/res"
	"marketplace-chat/middleware"
	"marketplace-chat/storage"
	"marketplace-chat/usecase"
)

type MessageHandler struct {
	usecase.MessageUsecase
	*logrus.Logger
}

func NewMessageHandler(messageUsecase usecase.MessageUsecase, logger *logrus.Logger) *MessageHandler {
	return &MessageHandler{MessageUsecase: messageUsecase, Logger: logger}
}

// SendMessage accepts JSON for text and multipart/form-data with a "file" part for attachments.
func (handler *MessageHandler) SendMessage(c *fiber.Ctx) error {
	payload := new(req.SendMessageRequest)
	if err := c.BodyParser(payload); err != nil {
		return apperror.Validation("invalid message body: %v", err)
	}

	var attachment *storage.Attachment
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fileHeader, err := c.FormFile("file")
		if err != nil && payload.Type.IsFile() {
			return apperror.Validation("file is required for %s messages", payload.Type)
		}
		if fileHeader != nil {
			file, err := fileHeader.Open()
			if err != nil {
				return apperror.Upload("open uploaded file", err)
			}
			defer file.Close()
			attachment = &storage.Attachment{
				Name:   fileHeader.Filename,
				Type:   payload.Type,
				Size:   fileHeader.Size,
				Reader: file,
			}
		}
	}

	actorID := middleware.ActorID(c)
	message, err := handler.MessageUsecase.SendMessage(c.UserContext(), actorID, payload, attachment)
	if err != nil {
		handler.Logger.WithError(err).Errorf("Failed to send message from %s", actorID)
		return err
	}
	handler.Logger.Infof("Message %s sent in chat %s", message.ID, message.ChatID)
	return c.Status(fiber.StatusCreated).JSON(res.OK("Successfully to Send Message", message))
}

func (handler *MessageHandler) EditMessage(c *fiber.Ctx) error {
	payload := new(req.EditMessageRequest)
	if err := c.BodyParser(payload); err != nil {
		return apperror.Validation("invalid edit body: %v", err)
	}

	message, err := handler.MessageUsecase.EditMessage(c.UserContext(), middleware.ActorID(c), c.Params("messageId"), payload)
	if err != nil {
		handler.Logger.WithError(err).Errorf("Failed to edit message %s", c.Params("messageId"))
		return err
	}
	return c.Status(fiber.StatusOK).JSON(res.OK("Successfully to Edit Message", message))
}

func (handler *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	deleted, err := handler.MessageUsecase.DeleteMessage(c.UserContext(), middleware.ActorID(c), c.Params("messageId"))
	if err != nil {
		handler.Logger.WithError(err).Errorf("Failed to delete message %s", c.Params("messageId"))
		return err
	}
	return c.Status(fiber.StatusOK).JSON(res.OK("Successfully to Delete Message", deleted))
}
