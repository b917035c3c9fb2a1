package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xaenox/bridge-bot/internal/models"
)

const mappingSeqKey = "slack_discord_map:seq"

// RedisStorage keeps one JSON value per mapping. SETNX provides the
// insert-if-absent guarantee. Keys never expire.
type RedisStorage struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStorage(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	logger.Info("Redis storage ready", zap.String("addr", opts.Addr))

	return &RedisStorage{client: client, logger: logger}, nil
}

func mappingRedisKey(sourceChannelID, sourceID string) string {
	return fmt.Sprintf("slack_discord_map:%s:%s", sourceChannelID, sourceID)
}

func (s *RedisStorage) GetMapping(ctx context.Context, sourceChannelID, sourceID string) (*models.ThreadMapping, error) {
	data, err := s.client.Get(ctx, mappingRedisKey(sourceChannelID, sourceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading mapping: %w", err)
	}

	var m models.ThreadMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error decoding mapping: %w", err)
	}
	return &m, nil
}

func (s *RedisStorage) SaveMapping(ctx context.Context, sourceChannelID, sourceID, destChannelID, destThreadRef string) (*models.ThreadMapping, error) {
	key := mappingRedisKey(sourceChannelID, sourceID)

	if existing, err := s.GetMapping(ctx, sourceChannelID, sourceID); err != nil || existing != nil {
		return existing, err
	}

	id, err := s.client.Incr(ctx, mappingSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("error allocating mapping id: %w", err)
	}

	m := &models.ThreadMapping{
		ID:              id,
		SourceChannelID: sourceChannelID,
		SourceID:        sourceID,
		DestChannelID:   destChannelID,
		DestThreadRef:   destThreadRef,
		CreatedAt:       time.Now().UTC(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error encoding mapping: %w", err)
	}

	created, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("error creating mapping: %w", err)
	}
	if created {
		return m, nil
	}

	s.logger.Debug("Mapping insert lost a race, re-reading",
		zap.String("source_channel_id", sourceChannelID),
		zap.String("source_id", sourceID))

	existing, err := s.GetMapping(ctx, sourceChannelID, sourceID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("mapping %s/%s missing after insert", sourceChannelID, sourceID)
	}
	return existing, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
