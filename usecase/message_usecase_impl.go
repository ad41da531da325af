package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"marketplace-chat/apperror"
	"marketplace-chat/dto"
	"marketplace-chat/dto/req"
	"marketplace-chat/entity"
	"marketplace-chat/repository"
	"marketplace-chat/storage"
)

type messageUsecase struct {
	db          *gorm.DB
	log         *logrus.Logger
	validate    *validator.Validate
	messages    *repository.MessageRepository
	users       *repository.UserRepository
	chatUsecase ChatUsecase
	chats       *repository.ChatRepository
	uploader    storage.Uploader
	policy      storage.Policy
	window      time.Duration
	now         func() time.Time
}

type MessageUsecaseConfig struct {
	DB          *gorm.DB
	Logger      *logrus.Logger
	Validate    *validator.Validate
	Messages    *repository.MessageRepository
	Users       *repository.UserRepository
	Chats       *repository.ChatRepository
	ChatUsecase ChatUsecase
	Uploader    storage.Uploader
	Policy      storage.Policy
	Window      time.Duration
	Now         func() time.Time
}

func NewMessageUsecase(cfg MessageUsecaseConfig) MessageUsecase {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Uploader == nil {
		cfg.Uploader = storage.NoopUploader{}
	}
	return &messageUsecase{
		db:          cfg.DB,
		log:         cfg.Logger,
		validate:    cfg.Validate,
		messages:    cfg.Messages,
		users:       cfg.Users,
		chats:       cfg.Chats,
		chatUsecase: cfg.ChatUsecase,
		uploader:    cfg.Uploader,
		policy:      cfg.Policy,
		window:      cfg.Window,
		now:         cfg.Now,
	}
}

func (uc *messageUsecase) SendMessage(ctx context.Context, actorID string, request *req.SendMessageRequest, attachment *storage.Attachment) (dto.Message, error) {
	if err := uc.validateSend(request, attachment); err != nil {
		return dto.Message{}, err
	}

	// a retry with a known correlation id returns the original message instead of a duplicate
	if request.CorrelationID != "" {
		existing, err := uc.messages.FindByCorrelation(ctx, uc.db, actorID, request.CorrelationID)
		if err != nil {
			return dto.Message{}, fmt.Errorf("lookup correlation: %w", err)
		}
		if existing != nil {
			uc.log.Infof("Replaying message %s for correlation %s", existing.ID, request.CorrelationID)
			return ToMessageDTO(existing), nil
		}
	}

	var chat *entity.Conversation
	receiverID := request.ReceiverID
	if request.ChatID != "" {
		found, err := uc.chatUsecase.FindParticipantChat(ctx, actorID, request.ChatID)
		if err != nil {
			return dto.Message{}, err
		}
		other := found.Other(actorID)
		if receiverID != "" && receiverID != other {
			return dto.Message{}, apperror.Validation("receiverId does not belong to conversation %s", found.ID)
		}
		chat, receiverID = found, other
	} else {
		if receiverID == actorID {
			return dto.Message{}, apperror.Validation("cannot start a conversation with yourself")
		}
		exists, err := uc.users.Exists(ctx, uc.db, receiverID)
		if err != nil {
			return dto.Message{}, fmt.Errorf("lookup receiver: %w", err)
		}
		if !exists {
			return dto.Message{}, apperror.NotFound("user %s not found", receiverID)
		}
	}

	message := &entity.Message{
		SenderID:   actorID,
		ReceiverID: receiverID,
		Type:       request.Type,
		Text:       request.Text,
	}
	if request.CorrelationID != "" {
		correlation := request.CorrelationID
		message.CorrelationID = &correlation
	}

	// upload before any record exists so a rejected file leaves nothing behind
	if attachment != nil {
		if err := uc.upload(ctx, actorID, receiverID, attachment, message); err != nil {
			return dto.Message{}, err
		}
	}

	if chat == nil {
		ensured, err := uc.chatUsecase.EnsureConversation(ctx, actorID, receiverID, request.StoreID)
		if err != nil {
			return dto.Message{}, err
		}
		chat = ensured
	}
	message.ConversationID = chat.ID

	if err := uc.insert(ctx, message); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) && message.CorrelationID != nil {
			// a concurrent retry won the race on the correlation index
			existing, findErr := uc.messages.FindByCorrelation(ctx, uc.db, actorID, *message.CorrelationID)
			if findErr == nil && existing != nil {
				return ToMessageDTO(existing), nil
			}
		}
		uc.log.WithError(err).Errorf("Failed to save message: %v", err)
		return dto.Message{}, fmt.Errorf("save message: %w", err)
	}

	uc.log.Infof("Message %s stored in chat %s", message.ID, chat.ID)
	return ToMessageDTO(message), nil
}

func (uc *messageUsecase) validateSend(request *req.SendMessageRequest, attachment *storage.Attachment) error {
	if request == nil {
		return apperror.Validation("request body is required")
	}
	if err := uc.validate.Struct(request); err != nil {
		return apperror.Wrap(apperror.KindValidation, "invalid message request", err)
	}
	if request.Type.IsFile() {
		if attachment == nil {
			return apperror.Validation("%s messages require an attachment", request.Type)
		}
		if request.Text != "" {
			return apperror.Validation("%s messages cannot carry text", request.Type)
		}
		attachment.Type = request.Type
	} else if attachment != nil {
		return apperror.Validation("text messages cannot carry an attachment")
	}
	return nil
}

func (uc *messageUsecase) upload(ctx context.Context, actorID, receiverID string, attachment *storage.Attachment, message *entity.Message) error {
	inspected, err := uc.policy.Inspect(attachment)
	if err != nil {
		return err
	}
	pair := entity.ConversationPairKey(actorID, receiverID, "")
	key := fmt.Sprintf("chat/%s/%s%s", uuid.NewSHA1(uuid.NameSpaceURL, []byte(pair)).String(), uuid.New().String(), inspected.Ext)

	url, err := uc.uploader.Upload(ctx, key, inspected.Body, inspected.Size, inspected.MimeType)
	if err != nil {
		uc.log.WithError(err).Errorf("Failed to upload attachment %s", inspected.Name)
		return apperror.Upload("store attachment", err)
	}

	message.FileURL = url
	message.FileKey = key
	message.FileName = inspected.Name
	message.FileMime = inspected.MimeType
	message.FileSize = inspected.Size
	return nil
}

func (uc *messageUsecase) insert(ctx context.Context, message *entity.Message) error {
	trx := uc.db.WithContext(ctx).Begin()
	defer trx.Rollback()

	if err := uc.messages.Save(ctx, trx, message); err != nil {
		return err
	}
	if err := uc.chats.TouchLastMessage(ctx, trx, message.ConversationID, message.CreatedAt); err != nil {
		return err
	}
	return trx.Commit().Error
}

func (uc *messageUsecase) EditMessage(ctx context.Context, actorID, messageID string, request *req.EditMessageRequest) (dto.Message, error) {
	if request == nil {
		return dto.Message{}, apperror.Validation("request body is required")
	}
	if err := uc.validate.Struct(request); err != nil {
		return dto.Message{}, apperror.Wrap(apperror.KindValidation, "invalid edit request", err)
	}

	message, err := uc.mutable(ctx, actorID, messageID)
	if err != nil {
		return dto.Message{}, err
	}
	if message.Type.IsFile() {
		return dto.Message{}, apperror.Validation("only text messages can be edited")
	}

	if err := uc.messages.UpdateText(ctx, uc.db, message, request.Text); err != nil {
		return dto.Message{}, fmt.Errorf("update message: %w", err)
	}
	message.Text = request.Text
	message.Edited = true

	uc.log.Infof("Message %s edited by %s", message.ID, actorID)
	return ToMessageDTO(message), nil
}

func (uc *messageUsecase) DeleteMessage(ctx context.Context, actorID, messageID string) (dto.DeletePayload, error) {
	message, err := uc.mutable(ctx, actorID, messageID)
	if err != nil {
		return dto.DeletePayload{}, err
	}
	if err := uc.messages.DeleteByID(ctx, uc.db, message.ID); err != nil {
		return dto.DeletePayload{}, fmt.Errorf("delete message: %w", err)
	}

	uc.log.Infof("Message %s deleted by %s", message.ID, actorID)
	return dto.DeletePayload{MessageID: message.ID, ChatID: message.ConversationID}, nil
}

// mutable loads a message and enforces sender ownership plus the mutability window.
func (uc *messageUsecase) mutable(ctx context.Context, actorID, messageID string) (*entity.Message, error) {
	message, err := uc.messages.FindMessageByID(ctx, uc.db, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("message %s not found", messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	if message.SenderID != actorID {
		return nil, apperror.Forbidden("only the sender can modify this message")
	}
	if !message.WithinWindow(uc.now(), uc.window) {
		return nil, apperror.Forbidden("message can no longer be modified")
	}
	return message, nil
}
