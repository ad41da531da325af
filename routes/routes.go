package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"marketplace-chat/dto/res"
	"marketplace-chat/handler"
	"marketplace-chat/middleware"
)

type ConfigRoute struct {
	*fiber.App
	*middleware.Middleware
	*handler.UserHandler
	*handler.ChatHandler
	*handler.MessageHandler
	*handler.WebSocketHandler
	Gatherer prometheus.Gatherer
}

func (rc *ConfigRoute) GetRoute() {
	rc.GetPublicRoute()
	rc.GetProtectedRoute()
	rc.GetWebSocketRoute()
}

func (rc *ConfigRoute) GetPublicRoute() {
	rc.App.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(res.OK[any]("ok", nil))
	})
	if rc.Gatherer != nil {
		rc.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(rc.Gatherer, promhttp.HandlerOpts{})))
	}
}

func (rc *ConfigRoute) GetProtectedRoute() {
	app := rc.App.Group("/api/v1")
	app.Use(rc.Middleware.JWTProtected)

	app.Get("/auth/me", rc.UserHandler.GetUserByToken)

	app.Get("/chats", rc.ChatHandler.GetAllChat)
	app.Get("/chats/:chatId/messages", rc.ChatHandler.GetMessagesByID)
	app.Put("/chats/:chatId/seen", rc.ChatHandler.MarkSeen)

	app.Post("/messages", rc.MessageHandler.SendMessage)
	app.Put("/messages/:messageId", rc.MessageHandler.EditMessage)
	app.Delete("/messages/:messageId", rc.MessageHandler.DeleteMessage)
}

func (rc *ConfigRoute) GetWebSocketRoute() {
	rc.App.Use("/ws", rc.Middleware.WebSocketUpgrade)
	rc.App.Get("/ws", websocket.New(rc.WebSocketHandler.HandleWebSocket))
}
