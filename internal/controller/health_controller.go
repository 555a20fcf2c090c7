package controller

import (
	"textbook-chat-be/internal/pkg/serverutils"
	"textbook-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Check(ctx *fiber.Ctx) error
}

type healthController struct {
	chatService service.IChatService
}

func NewHealthController(chatService service.IChatService) IHealthController {
	return &healthController{chatService: chatService}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Check)
}

// Check always answers 200; a failing upstream only marks the gateway degraded.
func (c *healthController) Check(ctx *fiber.Ctx) error {
	res := c.chatService.Health(ctx.Context())
	return ctx.JSON(serverutils.SuccessResponse("Health check", res))
}
