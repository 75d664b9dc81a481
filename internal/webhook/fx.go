package webhook

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/jobqueue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("webhook.service",
	fx.Provide(
		NewDeduper,
		func(q *jobqueue.Queue) Enqueuer { return q },
		New,
	),
)

// NewDeduper uses redis when REDIS_ADDR is set and falls back to process memory.
func NewDeduper(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger) Deduper {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		log.Named("webhook.dedupe").Info("redis not configured, using in-memory delivery dedupe")
		return NewMemoryDeduper(clk)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewRedisDeduper(client)
}
