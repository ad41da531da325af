package dto

import (
	"time"

	"marketplace-chat/enum"
)

// Message is the full message object exchanged over REST and relayed in message:new / message:update.
type Message struct {
	ID            string           `json:"id"`
	ChatID        string           `json:"chatId"`
	SenderID      string           `json:"senderId"`
	ReceiverID    string           `json:"receiverId"`
	Type          enum.MessageType `json:"type"`
	Text          string           `json:"text,omitempty"`
	File          *FileRef         `json:"file,omitempty"`
	Seen          bool             `json:"seen"`
	Edited        bool             `json:"edited"`
	CorrelationID string           `json:"correlationId,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// FileRef points at an uploaded binary: the stable URL plus the storage identifier.
type FileRef struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,omitempty"`
}

type Conversation struct {
	ID            string    `json:"chatId"`
	UserID        string    `json:"userId"`
	CounterpartID string    `json:"counterpartId"`
	StoreID       string    `json:"storeId,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int64     `json:"unreadCount"`
}
