package controller

import (
	"errors"

	"textbook-chat-be/internal/dto"
	"textbook-chat-be/internal/pkg/serverutils"
	"textbook-chat-be/internal/service"
	"textbook-chat-be/pkg/chat"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	GetSession(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	Retry(ctx *fiber.Ctx) error
	ClearError(ctx *fiber.Ctx) error
	ToggleOpen(ctx *fiber.Ctx) error
	SetOpen(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
	cookieName  string
	wsHandler   fiber.Handler
}

// NewChatController serves the chat routes. wsHandler, when non-nil, is
// mounted at /ws behind the same session middleware.
func NewChatController(chatService service.IChatService, cookieName string, wsHandler fiber.Handler) IChatController {
	return &chatController{
		chatService: chatService,
		cookieName:  cookieName,
		wsHandler:   wsHandler,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.SessionMiddleware(c.cookieName))
	h.Get("session", c.GetSession)
	h.Post("messages", c.SendMessage)
	h.Post("retry", c.Retry)
	h.Delete("error", c.ClearError)
	h.Post("toggle", c.ToggleOpen)
	h.Put("open", c.SetOpen)
	if c.wsHandler != nil {
		h.Get("ws", c.wsHandler)
	}
}

func (c *chatController) GetSession(ctx *fiber.Ctx) error {
	res := c.chatService.GetState(ctx.Context(), serverutils.SessionId(ctx))
	return ctx.JSON(serverutils.SuccessResponse("Success get chat session", res))
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	err := serverutils.ValidateRequest(req)
	if err != nil {
		return err
	}

	res, err := c.chatService.SendMessage(ctx.Context(), serverutils.SessionId(ctx), &req)
	if err != nil {
		return inFlightToConflict(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *chatController) Retry(ctx *fiber.Ctx) error {
	res, err := c.chatService.Retry(ctx.Context(), serverutils.SessionId(ctx))
	if err != nil {
		return inFlightToConflict(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success retry message", res))
}

func (c *chatController) ClearError(ctx *fiber.Ctx) error {
	res := c.chatService.ClearError(ctx.Context(), serverutils.SessionId(ctx))
	return ctx.JSON(serverutils.SuccessResponse("Success clear error", res))
}

func (c *chatController) ToggleOpen(ctx *fiber.Ctx) error {
	res := c.chatService.ToggleOpen(ctx.Context(), serverutils.SessionId(ctx))
	return ctx.JSON(serverutils.SuccessResponse("Success toggle chat", res))
}

func (c *chatController) SetOpen(ctx *fiber.Ctx) error {
	var req dto.SetOpenRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	err := serverutils.ValidateRequest(req)
	if err != nil {
		return err
	}

	res := c.chatService.SetOpen(ctx.Context(), serverutils.SessionId(ctx), &req)
	return ctx.JSON(serverutils.SuccessResponse("Success set chat visibility", res))
}

func inFlightToConflict(err error) error {
	if errors.Is(err, chat.ErrRequestInFlight) {
		return fiber.NewError(fiber.StatusConflict, "A request is already in progress")
	}
	return err
}
