package handler

import (
	"context"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	limiter *service.RateLimiter
}

func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client, limiter *service.RateLimiter) *HealthHandler {
	return &HealthHandler{pool: pool, rdb: rdb, limiter: limiter}
}

// Health reports liveness plus the degraded-mode flags, so operators see
// a process running on local fallbacks without digging through logs.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":           "ok",
		"limiter_degraded": h.limiter.Degraded(),
		"redis_connected":  h.redisUp(c.Context()),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		return c.Status(503).JSON(fiber.Map{"status": "not ready", "error": "database unreachable"})
	}

	// Redis down is degraded, not unready: the service keeps working on
	// local fallbacks.
	return c.JSON(fiber.Map{
		"status":           "ready",
		"limiter_degraded": h.limiter.Degraded(),
		"redis_connected":  h.redisUp(ctx),
	})
}

func (h *HealthHandler) redisUp(ctx context.Context) bool {
	if h.rdb == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return h.rdb.Ping(pingCtx).Err() == nil
}
