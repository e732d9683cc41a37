package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/jmougeot/alarm-server/internal/auth"
	"github.com/jmougeot/alarm-server/internal/httputil"
	"github.com/jmougeot/alarm-server/internal/store"
)

// AuthHandler serves authentication endpoints.
type AuthHandler struct {
	Auth *auth.Service
}

// registerRequest is the JSON body for POST /api/v1/auth/register.
type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginRequest is the JSON body for POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// refreshRequest is the JSON body for POST /api/v1/auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func authResultResponse(user store.User, tokens auth.TokenPair) fiber.Map {
	return fiber.Map{
		"user": fiber.Map{
			"id":         user.ID,
			"username":   user.Username,
			"created_at": user.CreatedAt,
		},
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var body registerRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeInvalidBody, "Invalid request body")
	}

	user, tokens, err := h.Auth.Register(c.Context(), body.Username, body.Password)
	if err != nil {
		return mapAuthError(c, err)
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, authResultResponse(user, tokens))
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body loginRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeInvalidBody, "Invalid request body")
	}

	user, tokens, err := h.Auth.Login(c.Context(), body.Username, body.Password)
	if err != nil {
		return mapAuthError(c, err)
	}

	return httputil.Success(c, authResultResponse(user, tokens))
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var body refreshRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeInvalidBody, "Invalid request body")
	}
	if err := httputil.Validate(body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	}

	tokens, err := h.Auth.Refresh(c.Context(), body.RefreshToken)
	if err != nil {
		return mapAuthError(c, err)
	}

	return httputil.Success(c, fiber.Map{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

// Logout handles POST /api/v1/auth/logout, revoking every refresh token the
// authenticated caller holds.
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	userID := auth.UserID(c)
	if err := h.Auth.Logout(c.Context(), userID); err != nil {
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternalError, "An internal error occurred")
	}
	return httputil.Success(c, fiber.Map{"message": "Logged out"})
}

// mapAuthError converts auth-layer errors to appropriate HTTP responses.
func mapAuthError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrUsernameLength),
		errors.Is(err, auth.ErrUsernameInvalidChars):
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	case errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong):
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	case errors.Is(err, auth.ErrUsernameAlreadyTaken):
		return httputil.Fail(c, fiber.StatusConflict, httputil.CodeConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, err.Error())
	case errors.Is(err, auth.ErrRefreshTokenReused):
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Refresh token has already been used")
	case errors.Is(err, auth.ErrRefreshTokenNotFound), errors.Is(err, auth.ErrInvalidToken):
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, err.Error())
	default:
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternalError, "An internal error occurred")
	}
}
