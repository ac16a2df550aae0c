package middleware

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/publishflow/configs"
	"github.com/maheshrc27/publishflow/internal/service"
	"github.com/maheshrc27/publishflow/pkg/utils"
)

type AuthMiddleware struct {
	s   service.ApiKeyService
	us  service.UserService
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config, service service.ApiKeyService, users service.UserService) *AuthMiddleware {
	return &AuthMiddleware{s: service, us: users, cfg: cfg}
}

// AuthMiddleware accepts a session cookie or an api_key query parameter and
// stores the caller's user_id and is_admin in the request locals.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(m.cfg.CookieName)
		apiKey := c.Query("api_key")

		if tokenString == "" && apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Keys or cookies",
			})
		}

		var userID string
		if apiKey != "" {
			id, err := m.s.GetUserID(c.Context(), apiKey)
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			userID = fmt.Sprintf("%d", id)
		} else {
			claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
			if err != nil {
				c.Cookie(&fiber.Cookie{
					Name:   m.cfg.CookieName,
					Value:  "",
					Path:   "/",
					MaxAge: -1, // Delete cookie
				})

				slog.Info("token validation failed", "error", err)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid or expired token",
				})
			}
			userID = claims.UserID
		}

		id, err := strconv.ParseInt(userID, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid user",
			})
		}
		user, err := m.us.GetUserInfo(c.Context(), id)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid user",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("is_admin", user.IsAdmin)
		return c.Next()
	}
}
