package server

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"

	log "github.com/sirupsen/logrus"
)

const limitWindow = time.Minute

// Counter tracks how many times a key was hit inside the current window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a fixed window counter on redis, shared by every process
// behind the same instance.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Result()
}

// rateLimit throttles a route per client IP. A limiter outage is logged and
// the request passes; throttling is policy, not correctness.
func rateLimit(counter Counter, name string, max int, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if counter == nil {
			return c.Next()
		}
		key := fmt.Sprintf("limits:%s:%s", name, c.IP())
		n, err := counter.Incr(c.Context(), key, limitWindow)
		if err != nil {
			log.Errorf("limits, err=%v", err)
			return c.Next()
		}
		if n > int64(max) {
			return c.Status(429).JSON(&fiber.Map{"error": message})
		}
		return c.Next()
	}
}
