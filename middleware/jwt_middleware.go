package middleware

import (
	"strings"

	"clientportal/config"
	"clientportal/models"
	"clientportal/utils"

	"github.com/gofiber/fiber/v2"
)

// Protected resolves the bearer token to a tenant user and stores it in the
// request locals. Token issuance belongs to the portal's auth service; this
// middleware is its interface.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, utils.ErrCodeAuth, "Invalid authorization format", nil)
			}
			token = tokenParts[1]
		} else {
			// Fall back to cookie if header not present
			token = c.Cookies("access_token")
			if token == "" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, utils.ErrCodeAuth, "Authorization required", nil)
			}
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, utils.ErrCodeAuth, "Invalid or expired token", nil)
		}

		var user models.User
		if err := config.DB.First(&user, claims.UserID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, utils.ErrCodeAuth, "User not found", nil)
		}

		if !user.IsActive {
			return utils.ErrorResponse(c, fiber.StatusForbidden, utils.ErrCodeAuth, "Account is not active", nil)
		}

		if claims.TokenVersion != user.TokenVersion {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, utils.ErrCodeAuth, "Invalid token version", nil)
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)
		c.Locals("sessionID", claims.SessionID)

		return c.Next()
	}
}

// AdminOnly gates admin-acting-as-tenant operations such as bulk
// reclassification. Must run after Protected.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*models.User)
		if !ok || !user.IsAdmin {
			return utils.ErrorResponse(c, fiber.StatusForbidden, utils.ErrCodeAuth, "Admin access required", nil)
		}
		return c.Next()
	}
}
