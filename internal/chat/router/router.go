package router

import (
	"context"
	"errors"

	"chat_sync_service/internal/chat/app"
	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/metrics"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册 chat 路由, /metrics 不需要 token
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, inbox *app.InboxUseCase) {
	r.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	r.Use(middlewares.JWTMiddleware())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))

	r.Get("/api/conversations", func(c *fiber.Ctx) error {
		list, err := inbox.ListConversations(c.UserContext(), middlewares.MemberID(c), domain.ChatTab(c.Query("tab", string(domain.TabAll))))
		if err != nil {
			status := fiber.StatusInternalServerError
			if errors.Is(err, errprocess.ErrMissingViewer) {
				status = fiber.StatusUnauthorized
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"conversations": list})
	})
}
