package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"marketplace-chat/apperror"
	"marketplace-chat/dto"
	"marketplace-chat/dto/res"
	"marketplace-chat/entity"
	"marketplace-chat/repository"
)

type ChatUsecaseImpl struct {
	*repository.ChatRepository
	Messages *repository.MessageRepository
	*logrus.Logger
	*gorm.DB
	PageSize int
	Now      func() time.Time
}

func NewChatUsecase(chatRepository *repository.ChatRepository, messageRepository *repository.MessageRepository, logger *logrus.Logger, DB *gorm.DB, pageSize int) *ChatUsecaseImpl {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &ChatUsecaseImpl{
		ChatRepository: chatRepository,
		Messages:       messageRepository,
		Logger:         logger,
		DB:             DB,
		PageSize:       pageSize,
		Now:            time.Now,
	}
}

// EnsureConversation finds or creates the conversation for the pair. The unique pair key makes the
// create safe under concurrent first-contact sends: whoever loses the insert reads the winner's row.
func (uc *ChatUsecaseImpl) EnsureConversation(ctx context.Context, userID, counterpartID, storeID string) (*entity.Conversation, error) {
	pairKey := entity.ConversationPairKey(userID, counterpartID, storeID)

	existing, err := uc.ChatRepository.FindByPairKey(ctx, uc.DB, pairKey)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	newChat := &entity.Conversation{
		UserID:        userID,
		CounterpartID: counterpartID,
		StoreID:       storeID,
		PairKey:       pairKey,
		LastMessageAt: uc.Now().UTC(),
	}
	if err := uc.ChatRepository.CreateIfAbsent(ctx, uc.DB, newChat); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	chat, err := uc.ChatRepository.FindByPairKey(ctx, uc.DB, pairKey)
	if err != nil {
		return nil, fmt.Errorf("reload conversation: %w", err)
	}
	if chat == nil {
		return nil, fmt.Errorf("conversation %s vanished after create", pairKey)
	}
	if chat.ID == newChat.ID {
		uc.Logger.Infof("New conversation created: %s", chat.ID)
	}
	return chat, nil
}

// FindParticipantChat loads a conversation and checks the actor is one of its two parties.
func (uc *ChatUsecaseImpl) FindParticipantChat(ctx context.Context, actorID, chatID string) (*entity.Conversation, error) {
	chat, err := uc.ChatRepository.FindChatByID(ctx, uc.DB, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("conversation %s not found", chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if !chat.HasParticipant(actorID) {
		return nil, apperror.Forbidden("user is not a participant of this conversation")
	}
	return chat, nil
}

func (uc *ChatUsecaseImpl) GetChatsByUser(ctx context.Context, actorID string) ([]dto.Conversation, error) {
	chats, err := uc.ChatRepository.FindAllByUserID(ctx, uc.DB, actorID)
	if err != nil {
		uc.Logger.WithError(err).Error("Failed to get chats by user ID")
		return nil, err
	}

	responses := make([]dto.Conversation, 0, len(chats))
	for _, chat := range chats {
		item := dto.Conversation{
			ID:            chat.ID,
			UserID:        chat.UserID,
			CounterpartID: chat.CounterpartID,
			StoreID:       chat.StoreID,
			LastMessageAt: chat.LastMessageAt,
		}

		last, err := uc.Messages.FindLast(ctx, uc.DB, chat.ID)
		if err != nil {
			return nil, fmt.Errorf("last message of %s: %w", chat.ID, err)
		}
		if last != nil {
			item.LastMessage = preview(last)
		}

		if item.UnreadCount, err = uc.Messages.CountUnread(ctx, uc.DB, chat.ID, actorID); err != nil {
			return nil, fmt.Errorf("unread count of %s: %w", chat.ID, err)
		}
		responses = append(responses, item)
	}

	return responses, nil
}

// GetMessagesByChatID pages backwards from the newest message. skip is the opaque cursor handed
// back as NextCursor; the page itself is returned oldest first.
func (uc *ChatUsecaseImpl) GetMessagesByChatID(ctx context.Context, actorID, chatID string, skip, limit int) (res.MessagePage, error) {
	if skip < 0 {
		return res.MessagePage{}, apperror.Validation("cursor must not be negative")
	}
	if limit <= 0 {
		limit = uc.PageSize
	}

	if _, err := uc.FindParticipantChat(ctx, actorID, chatID); err != nil {
		return res.MessagePage{}, err
	}

	// one extra row tells us whether an older page exists
	rows, err := uc.Messages.FindPage(ctx, uc.DB, chatID, skip, limit+1)
	if err != nil {
		return res.MessagePage{}, fmt.Errorf("failed to get messages: %w", err)
	}

	page := res.MessagePage{Messages: make([]dto.Message, 0, limit)}
	if len(rows) > limit {
		rows = rows[:limit]
		next := skip + limit
		page.NextCursor = &next
	}
	for i := len(rows) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, ToMessageDTO(&rows[i]))
	}
	return page, nil
}

func (uc *ChatUsecaseImpl) MarkSeen(ctx context.Context, actorID, chatID string) (int64, error) {
	if _, err := uc.FindParticipantChat(ctx, actorID, chatID); err != nil {
		return 0, err
	}
	updated, err := uc.Messages.MarkSeen(ctx, uc.DB, chatID, actorID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	uc.Logger.Infof("Marked %d messages seen in chat %s for %s", updated, chatID, actorID)
	return updated, nil
}

func preview(m *entity.Message) string {
	if m.Type.IsFile() {
		if m.FileName != "" {
			return m.FileName
		}
		return string(m.Type)
	}
	const max = 80
	runes := []rune(m.Text)
	if len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return m.Text
}

// ToMessageDTO maps the stored row to the wire shape shared by REST and relay events.
func ToMessageDTO(m *entity.Message) dto.Message {
	out := dto.Message{
		ID:         m.ID,
		ChatID:     m.ConversationID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Type:       m.Type,
		Text:       m.Text,
		Seen:       m.Seen,
		Edited:     m.Edited,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.CorrelationID != nil {
		out.CorrelationID = *m.CorrelationID
	}
	if m.Type.IsFile() {
		out.File = &dto.FileRef{
			URL:      m.FileURL,
			Key:      m.FileKey,
			Name:     m.FileName,
			MimeType: m.FileMime,
			Size:     m.FileSize,
		}
	}
	return out
}
