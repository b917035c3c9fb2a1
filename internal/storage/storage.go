package storage

import (
	"context"

	"github.com/xaenox/bridge-bot/internal/models"
)

// Storage persists thread mappings. GetMapping returns (nil, nil) when no
// mapping exists. SaveMapping is insert-if-absent: when a mapping already
// exists for the source key it is returned unchanged.
type Storage interface {
	GetMapping(ctx context.Context, sourceChannelID, sourceID string) (*models.ThreadMapping, error)
	SaveMapping(ctx context.Context, sourceChannelID, sourceID, destChannelID, destThreadRef string) (*models.ThreadMapping, error)
	Close() error
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
	RedisURL string
}
