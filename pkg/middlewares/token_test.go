package middlewares

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() *fiber.App {
	logger.SetNewNop()
	app := fiber.New()
	app.Use(JWTMiddleware())
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(MemberID(c))
	})
	return app
}

func TestJWTMiddleware(t *testing.T) {
	app := newTestApp()
	valid, err := token.GenerateJWT("member-1", string(token.RoleMember), "test")
	require.NoError(t, err)

	t.Run("query token", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me?auth="+valid, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "member-1", string(body))
	})

	t.Run("cookie token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: CookieToken, Value: valid})
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me?auth=bogus", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}
