package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/yourusername/stockmeta/db"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// DBPing checks the shared database pool before the request continues and
// reconnects once if the ping fails.
func DBPing(log *zap.Logger) fiber.Handler {
	return DBPingWith(log, db.Ping, db.Reconnect)
}

// DBPingWith is DBPing with explicit ping and reconnect functions.
func DBPingWith(log *zap.Logger, ping func(context.Context) error, reconnect func() error) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), pingTimeout)
		defer cancel()

		err := ping(ctx)
		if err == nil {
			return c.Next()
		}
		log.Warn("database ping failed, reconnecting", zap.Error(err))
		if err := reconnect(); err != nil {
			log.Error("database reconnect failed", zap.Error(err))
			return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Database connection is down",
			})
		}
		log.Info("database reconnected")
		return c.Next()
	}
}
