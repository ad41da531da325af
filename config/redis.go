package config

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"marketplace-chat/broker"
	"marketplace-chat/config/common"
	"marketplace-chat/config/logger"
)

// NewPresenceRegistry uses Redis when REDIS_ADDR is set so presence survives a restart and is
// shared between instances. Without it, or when Redis is unreachable, presence stays in memory.
func NewPresenceRegistry(cfg *common.Config, log *logger.AppLogger) broker.Registry {
	addr, password, db := cfg.GetRedisConfig()
	if addr == "" {
		log.WS.Info.Info().Msg("REDIS_ADDR not set, using in-memory presence registry")
		return broker.NewMemoryRegistry()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WS.Error.Error().Err(err).Str("addr", addr).Msg("redis unreachable, falling back to in-memory presence registry")
		_ = client.Close()
		return broker.NewMemoryRegistry()
	}

	log.WS.Info.Info().Str("addr", addr).Msg("connected to redis presence registry")
	return broker.NewRedisRegistry(client)
}
