package entity

import (
	"strings"
	"time"
)

// Conversation is the durable thread between an initiating user and a counterpart,
// optionally scoped to a storefront. PairKey is unique, so the same pair never gets two threads.
type Conversation struct {
	BaseEntity
	UserID        string    `json:"userId" gorm:"type:varchar(255);not null;index"`
	CounterpartID string    `json:"counterpartId" gorm:"type:varchar(255);not null;index"`
	StoreID       string    `json:"storeId,omitempty" gorm:"type:varchar(255)"`
	PairKey       string    `json:"-" gorm:"type:varchar(800);not null;uniqueIndex"`
	LastMessageAt time.Time `json:"lastMessageAt" gorm:"index"`

	Messages []Message `json:"-" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE;"`
}

// ConversationPairKey is order-insensitive in the two parties.
func ConversationPairKey(userA, userB, storeID string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return strings.Join([]string{userA, userB, storeID}, "|")
}

func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserID == userID || c.CounterpartID == userID
}

// Other returns the party that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.UserID == userID {
		return c.CounterpartID
	}
	return c.UserID
}
