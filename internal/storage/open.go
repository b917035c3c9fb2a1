package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Open builds the Storage selected by config.Driver.
func Open(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (Storage, error) {
	switch config.Driver {
	case "memory":
		logger.Info("Using in-memory storage")
		return NewMemoryStorage(), nil
	case "postgres":
		logger.Info("Using PostgreSQL storage")
		return NewPostgresStorage(config, logger)
	case "redis":
		logger.Info("Using Redis storage")
		return NewRedisStorage(ctx, config.RedisURL, logger)
	case "sqlite", "":
		logger.Info("Using SQLite storage")
		return NewSQLiteStorage(ctx, config.Path, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Driver)
	}
}
