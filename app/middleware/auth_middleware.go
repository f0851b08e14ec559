// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"github.com/gofiber/fiber/v3"
)

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

func unauthorized(c fiber.Ctx, reason, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		OK:      false,
		Reason:  reason,
		Message: message,
	})
}

// Authenticate validates the bearer token and requires one of the given roles
func (m *AuthMiddleware) Authenticate(roles ...services.Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "MISSING_AUTHORIZATION_HEADER", "Authorization header is required")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "INVALID_AUTHORIZATION_FORMAT", "Invalid authorization header format. Expected 'Bearer <token>'")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return unauthorized(c, "MISSING_ACCESS_TOKEN", "Access token is required")
		}

		claims, err := m.tokenService.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrAuthTokenExpired):
				return unauthorized(c, "TOKEN_EXPIRED", "Access token has expired")
			case errors.Is(err, services.ErrAuthTokenInvalid):
				return unauthorized(c, "TOKEN_INVALID", "Invalid access token")
			default:
				return unauthorized(c, "TOKEN_VALIDATION_FAILED", "Token validation failed")
			}
		}

		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				OK:      false,
				Reason:  "FORBIDDEN",
				Message: "Token is not allowed to call this endpoint",
			})
		}

		c.Locals(utils.SubjectKey, claims.SubjectID)
		c.Locals(utils.RoleKey, claims.Role)
		c.Locals("token_claims", claims)

		return c.Next()
	}
}

func hasRole(role services.Role, allowed []services.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// GetTokenClaimsFromContext extracts token claims from the request context
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.TokenClaims, bool) {
	claims, ok := c.Locals("token_claims").(*services.TokenClaims)
	return claims, ok
}

// WebhookBasicAuth checks HTTP basic credentials on provider webhooks. Empty credentials
// disable the check.
func WebhookBasicAuth(username, password string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if username == "" && password == "" {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Basic ") {
			return unauthorized(c, "INVALID_WEBHOOK_CREDENTIALS", "Webhook credentials are required")
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
		if err != nil {
			return unauthorized(c, "INVALID_WEBHOOK_CREDENTIALS", "Malformed webhook credentials")
		}
		user, pass, _ := strings.Cut(string(raw), ":")

		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !userOK || !passOK {
			return unauthorized(c, "INVALID_WEBHOOK_CREDENTIALS", "Invalid webhook credentials")
		}
		return c.Next()
	}
}
