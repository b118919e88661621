package bootstrap

import (
	"context"
	"fmt"

	"portfolio-chat/internal/config"
	"portfolio-chat/pkg/store"

	"github.com/redis/go-redis/v9"
)

// OpenStore opens the client-side KV store named by CHAT_STORAGE_DRIVER.
// Unknown drivers fall back to the file store.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch store.StoreType(cfg.Chat.StorageDriver) {
	case store.StoreTypeRedis:
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store.NewStore(store.StoreTypeRedis, store.WithRedisClient(rdb))
	case store.StoreTypeMemory:
		return store.NewStore(store.StoreTypeMemory)
	default:
		return store.NewStore(store.StoreTypeFile, store.WithFilePath(cfg.Chat.StateFile))
	}
}
