package dto

import "encoding/json"

const (
	EventChatJoin       = "chat:join"
	EventChatLeave      = "chat:leave"
	EventMessageNew     = "message:new"
	EventMessageUpdate  = "message:update"
	EventMessageDelete  = "message:delete"
	EventMessageSeen    = "message:seen"
	EventTyping         = "typing"
	EventStopTyping     = "stop-typing"
	EventUserJoinGlobal = "user:join-global"
	EventUserLeave      = "user:leave-global"
	EventUsersOnline    = "users:online"
)

// Envelope is the frame carried on the websocket. Data is relayed untouched.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

type RoomPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type DeletePayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type SeenPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type TypingPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type GlobalPayload struct {
	UserID string `json:"userId"`
}
