package entity

import (
	"time"

	"marketplace-chat/enum"
)

type Message struct {
	BaseEntity
	ConversationID string           `json:"chatId" gorm:"type:varchar(255);not null;index"`
	SenderID       string           `json:"senderId" gorm:"type:varchar(255);not null;uniqueIndex:ux_message_sender_correlation,priority:1"`
	ReceiverID     string           `json:"receiverId" gorm:"type:varchar(255);not null;index"`
	Type           enum.MessageType `json:"type" gorm:"type:varchar(10);not null;default:'text'"`
	Text           string           `json:"text,omitempty" gorm:"type:TEXT"`
	FileURL        string           `json:"fileUrl,omitempty" gorm:"type:TEXT"`
	FileKey        string           `json:"fileKey,omitempty" gorm:"type:varchar(512)"`
	FileName       string           `json:"fileName,omitempty" gorm:"type:varchar(255)"`
	FileMime       string           `json:"fileMime,omitempty" gorm:"type:varchar(127)"`
	FileSize       int64            `json:"fileSize,omitempty"`
	Seen           bool             `json:"seen" gorm:"default:false;index"`
	Edited         bool             `json:"edited" gorm:"default:false"`
	CorrelationID  *string          `json:"correlationId,omitempty" gorm:"type:varchar(64);uniqueIndex:ux_message_sender_correlation,priority:2"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID"`
}

// MutableUntil is the last instant at which the sender may still edit or delete the message.
func (m *Message) MutableUntil(window time.Duration) time.Time {
	return m.CreatedAt.Add(window)
}

// WithinWindow is inclusive: a request at exactly CreatedAt+window is still accepted.
func (m *Message) WithinWindow(now time.Time, window time.Duration) bool {
	return !now.After(m.MutableUntil(window))
}
