package handler

import (
	"textbook-chat-be/internal/pkg/logger"
	"textbook-chat-be/internal/pkg/serverutils"
	"textbook-chat-be/internal/service"
	internalWS "textbook-chat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type ChatWsHandler struct {
	chatService service.IChatService
	hub         *internalWS.Hub
	logger      logger.ILogger
}

func NewChatWsHandler(chatService service.IChatService, hub *internalWS.Hub, log logger.ILogger) *ChatWsHandler {
	return &ChatWsHandler{
		chatService: chatService,
		hub:         hub,
		logger:      log,
	}
}

// ServeWs streams state frames of the caller's session. It must run behind
// the session middleware.
func (h *ChatWsHandler) ServeWs(c *fiber.Ctx) error {
	sessionId := serverutils.SessionId(c)
	if sessionId == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing chat session")
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	// Snapshot before the upgrade: the fiber ctx is not usable inside the
	// socket callback.
	initial, err := internalWS.EncodeFrame(service.FrameChatState, h.chatService.GetState(c.Context(), sessionId))
	if err != nil {
		h.logger.Warn("ChatWsHandler", "Failed to encode initial state", map[string]interface{}{"error": err.Error()})
		initial = nil
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ChatWsHandler", "Starting WebSocket session", map[string]interface{}{"session_id": sessionId})
		internalWS.ServeWs(h.hub, conn, sessionId, initial)
		h.logger.Info("ChatWsHandler", "WebSocket session ended", map[string]interface{}{"session_id": sessionId})
	})(c)
}
