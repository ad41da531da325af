package req

import "marketplace-chat/enum"

// SendMessageRequest creates a message. ChatID is empty on first contact; the gateway then
// finds or creates the conversation from ReceiverID and StoreID.
type SendMessageRequest struct {
	ChatID        string           `json:"chatId" form:"chatId" validate:"omitempty,max=255"`
	ReceiverID    string           `json:"receiverId" form:"receiverId" validate:"required_without=ChatID,max=255"`
	StoreID       string           `json:"storeId,omitempty" form:"storeId" validate:"omitempty,max=255"`
	Type          enum.MessageType `json:"type" form:"type" validate:"required,oneof=text image video file"`
	Text          string           `json:"text,omitempty" form:"text" validate:"required_if=Type text,max=4000"`
	CorrelationID string           `json:"correlationId,omitempty" form:"correlationId" validate:"omitempty,max=64"`
}

type EditMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type PageQuery struct {
	Skip  int `query:"skip" validate:"gte=0"`
	Limit int `query:"limit" validate:"gte=0,lte=100"`
}
