// Package engine is the client-side message lifecycle: optimistic placeholders keyed by
// correlation id, reconciliation against the gateway response and the relay, and read receipts.
package engine

import (
	"context"
	"io"

	"marketplace-chat/dto"
	"marketplace-chat/dto/req"
	"marketplace-chat/dto/res"
)

// Attachment is a file picked for sending. Reader is consumed once, at Send.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Gateway is the persistence surface the engine talks to, acting as the signed-in user.
type Gateway interface {
	Create(ctx context.Context, r req.SendMessageRequest, file *Attachment) (dto.Message, error)
	Paginate(ctx context.Context, chatID string, skip, limit int) (res.MessagePage, error)
	Edit(ctx context.Context, messageID, text string) (dto.Message, error)
	Delete(ctx context.Context, messageID string) error
	MarkSeen(ctx context.Context, chatID string) (res.MarkSeenResponse, error)
}

// Relay publishes events to the other participant's live connection.
type Relay interface {
	Emit(event string, payload any) error
	Join(chatID string) error
}

// TypingCanceller stops the local typing signal when a message is submitted.
type TypingCanceller interface {
	CancelTyping(chatID string)
}
