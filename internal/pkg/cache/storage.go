package cache

import (
	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/gofiber/storage/redis"
)

// LimiterDB keeps rate limiter counters apart from the job queue.
const LimiterDB = 1

// NewFiberStorage returns a fiber.Storage on the given Redis database, shared
// by every instance behind the load balancer.
func NewFiberStorage(cfg config.CacheConfig, database int) *redis.Storage {
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		Database: database,
		Reset:    false,
	})
}
