package cache

import (
	"context"
	"time"

	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to the Redis/Dragonfly server. An unreachable server is
// logged, not fatal: the webhook path does not depend on Redis.
func NewClient(cfg config.CacheConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to %s: %v", cfg.Addr(), err)
	} else {
		log.Infof("[Cache] Connected to %s: %s", cfg.Addr(), pong)
	}
	return client
}
