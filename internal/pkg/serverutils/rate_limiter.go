package serverutils

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware is a fixed window limiter keyed by client IP, backed
// by Redis so the window survives restarts and is shared across replicas.
// It fails open: a missing or unreachable Redis never blocks a request.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if rdb == nil || limit <= 0 {
			return ctx.Next()
		}

		key := fmt.Sprintf("ratelimit:chat:%s", ctx.IP())

		count, err := rdb.Incr(ctx.Context(), key).Result()
		if err != nil {
			return ctx.Next()
		}
		if count == 1 {
			rdb.Expire(ctx.Context(), key, window)
		}

		if count > int64(limit) {
			return ctx.Status(fiber.StatusTooManyRequests).JSON(
				ErrorResponse(fiber.StatusTooManyRequests, "Too many requests, slow down"))
		}

		return ctx.Next()
	}
}
