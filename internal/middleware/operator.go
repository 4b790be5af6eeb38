package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	operatorPassphraseHeader = "X-Operator-Passphrase"
	operatorRateKeyPrefix    = "rl:operator:"
)

// OperatorGuard protects destructive endpoints (restore, entry edits) with a
// shared operator passphrase checked against a bcrypt hash. With no hash
// configured the guard refuses everything, unless allowOpen is set, which is
// meant for development only.
func OperatorGuard(passphraseHash string, allowOpen bool, logger *slog.Logger) fiber.Handler {
	hash := []byte(passphraseHash)
	return func(c *fiber.Ctx) error {
		if len(hash) == 0 {
			if allowOpen {
				return c.Next()
			}
			return fiber.NewError(http.StatusForbidden, "operator actions are disabled")
		}

		passphrase := c.Get(operatorPassphraseHeader)
		if passphrase == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing operator passphrase")
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(passphrase)); err != nil {
			requestID, _ := c.Locals(requestIDHeader).(string)
			logger.Warn("operator passphrase rejected",
				slog.String("path", c.Path()),
				slog.String("ip", c.IP()),
				slog.String("request_id", requestID),
			)
			return fiber.NewError(http.StatusUnauthorized, "invalid operator passphrase")
		}
		c.Locals("operator", true)
		return c.Next()
	}
}

// OperatorRateLimit caps guarded requests per client IP and minute. It fails
// open when Redis is missing or erroring.
func OperatorRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), cacheTimeout)
		defer cancel()

		key := operatorRateKeyPrefix + c.IP()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many operator requests, try again later")
		}
		return c.Next()
	}
}
