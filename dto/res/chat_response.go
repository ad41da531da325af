package res

import "marketplace-chat/dto"

type MessagePage struct {
	Messages   []dto.Message `json:"messages"`
	NextCursor *int          `json:"nextCursor"`
}

type MarkSeenResponse struct {
	ChatID  string `json:"chatId"`
	Updated int64  `json:"updated"`
}
