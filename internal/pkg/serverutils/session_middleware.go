package serverutils

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const SessionIdLocal = "session_id"

// SessionMiddleware resolves the browser session from its cookie and mints a
// new one when absent or malformed. The cookie has no expiry so it lives as
// long as the browser session.
func SessionMiddleware(cookieName string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		sessionId := ctx.Cookies(cookieName)
		if _, err := uuid.Parse(sessionId); err != nil {
			sessionId = uuid.NewString()
			ctx.Cookie(&fiber.Cookie{
				Name:     cookieName,
				Value:    sessionId,
				Path:     "/",
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		ctx.Locals(SessionIdLocal, sessionId)
		return ctx.Next()
	}
}

func SessionId(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals(SessionIdLocal).(string)
	return id
}
