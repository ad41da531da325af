package handler

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"marketplace-chat/broker"
	"marketplace-chat/config/logger"
	"marketplace-chat/middleware"
)

// WebSocketHandler binds each upgraded connection to a broker peer. Reads happen here; writes go
// through the peer's own writer goroutine.
type WebSocketHandler struct {
	*broker.Hub
	Log    *logger.AppLogger
	Buffer int
}

func NewWebSocketHandler(hub *broker.Hub, log *logger.AppLogger) *WebSocketHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WebSocketHandler{Hub: hub, Log: log, Buffer: 64}
}

func (handler *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	ctx := context.Background()

	userID, _ := c.Locals(middleware.UserIDKey).(string)
	if userID == "" {
		handler.Log.WS.Warning.Warn().Msg("websocket without authenticated user")
		_ = c.Close()
		return
	}

	peer := broker.NewConnPeer(uuid.NewString(), userID, c, handler.Buffer)
	handler.Hub.Connect(peer)
	go peer.WritePump()
	defer func() {
		handler.Hub.Disconnect(ctx, peer)
		peer.Close()
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				handler.Log.WS.Warning.Warn().Err(err).Str("userId", userID).Msg("read error")
			}
			return
		}
		handler.Hub.Handle(ctx, peer, raw)
	}
}
