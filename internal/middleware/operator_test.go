package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/shopdesk/backoffice/internal/logging"
)

func guardedApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(RequestID())
	for _, h := range handlers {
		app.Use(h)
	}
	app.Post("/backup/restore", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func send(t *testing.T, app *fiber.App, passphrase string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/backup/restore", nil)
	if passphrase != "" {
		req.Header.Set(operatorPassphraseHeader, passphrase)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestOperatorGuard(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	require.NoError(t, err)
	app := guardedApp(OperatorGuard(string(hash), false, logging.Discard()))

	assert.Equal(t, fiber.StatusUnauthorized, send(t, app, ""))
	assert.Equal(t, fiber.StatusUnauthorized, send(t, app, "wrong"))
	assert.Equal(t, fiber.StatusNoContent, send(t, app, "open sesame"))
}

func TestOperatorGuardWithoutHash(t *testing.T) {
	closed := guardedApp(OperatorGuard("", false, logging.Discard()))
	assert.Equal(t, fiber.StatusForbidden, send(t, closed, "anything"))

	open := guardedApp(OperatorGuard("", true, logging.Discard()))
	assert.Equal(t, fiber.StatusNoContent, send(t, open, ""))
}

func TestOperatorRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := guardedApp(OperatorRateLimit(cache, 2))
	assert.Equal(t, fiber.StatusNoContent, send(t, app, ""))
	assert.Equal(t, fiber.StatusNoContent, send(t, app, ""))
	assert.Equal(t, fiber.StatusTooManyRequests, send(t, app, ""))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, fiber.StatusNoContent, send(t, app, ""))
}

func TestOperatorRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	mr.Close()

	app := guardedApp(OperatorRateLimit(cache, 1))
	assert.Equal(t, fiber.StatusNoContent, send(t, app, ""))
	assert.Equal(t, fiber.StatusNoContent, send(t, app, ""))
}
