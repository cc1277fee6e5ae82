package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/palemoky/tetris-battle/internal/config"
	"github.com/palemoky/tetris-battle/internal/logger"
)

// Open 按配置选择存储后端
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case "tcp":
		return NewClient(cfg.Storage.Addr, cfg.Storage.RequestTimeout())
	case "memory":
		return NewMemoryStore(cfg.Storage.SnapshotPath)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("storage: redis at %s", cfg.Redis.Addr)
		return NewRedisStore(client, cfg.Redis.Prefix), nil
	case "mongo":
		return NewMongoStore(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
