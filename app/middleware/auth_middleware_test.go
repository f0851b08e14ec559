package middleware

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T) services.TokenService {
	t.Helper()
	ts, err := services.NewTokenService("studio", "dispatch", false, "", "", "test-secret-key")
	require.NoError(t, err)
	return ts
}

func TestAuthenticate(t *testing.T) {
	ts := newTestTokenService(t)
	auth := NewAuthMiddleware(ts)

	app := fiber.New()
	app.Post("/cron", auth.Authenticate(services.RoleCron), func(c fiber.Ctx) error {
		claims, ok := GetTokenClaimsFromContext(c)
		if !ok {
			return c.SendStatus(http.StatusTeapot)
		}
		return c.SendString(string(claims.Role))
	})

	cronToken, err := ts.GenerateToken(1, services.RoleCron, time.Minute)
	require.NoError(t, err)
	operatorToken, err := ts.GenerateToken(2, services.RoleOperator, time.Minute)
	require.NoError(t, err)
	other, err := services.NewTokenService("studio", "dispatch", false, "", "", "another-secret")
	require.NoError(t, err)
	foreignToken, err := other.GenerateToken(1, services.RoleCron, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid cron token", "Bearer " + cronToken, http.StatusOK},
		{"wrong role", "Bearer " + operatorToken, http.StatusForbidden},
		{"signed with another key", "Bearer " + foreignToken, http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + cronToken, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/cron", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, "cron", string(body))
			}
		})
	}
}

func TestWebhookBasicAuth(t *testing.T) {
	app := fiber.New()
	app.Post("/hook", WebhookBasicAuth("postmark", "s3cret"), func(c fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	basic := func(user, pass string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}
	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", basic("postmark", "s3cret"), http.StatusOK},
		{"wrong password", basic("postmark", "nope"), http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Basic %%%", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	open := fiber.New()
	open.Post("/hook", WebhookBasicAuth("", ""), func(c fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	resp, err := open.Test(httptest.NewRequest(http.MethodPost, "/hook", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
