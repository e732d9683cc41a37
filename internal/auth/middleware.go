package auth

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jmougeot/alarm-server/internal/httputil"
)

// RequireAuth returns Fiber middleware that validates a JWT Bearer token from
// the Authorization header and stores the user ID in c.Locals("userID").
func RequireAuth(secret, issuer string) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing authorization header")
		}

		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Invalid authorization format")
		}
		tokenStr := header[len(prefix):]

		claims, err := ValidateAccessToken(tokenStr, secret, issuer)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				message = "Token has expired"
			}
			return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, message)
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Invalid token subject")
		}

		c.Locals("userID", userID)
		return c.Next()
	}
}

// UserID extracts the authenticated user id stashed by RequireAuth. Panics if
// called on a route not protected by RequireAuth — a programming error.
func UserID(c fiber.Ctx) uuid.UUID {
	return c.Locals("userID").(uuid.UUID)
}
