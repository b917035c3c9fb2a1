package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/bridge-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("PostgreSQL storage ready",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))

	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetMapping(ctx context.Context, sourceChannelID, sourceID string) (*models.ThreadMapping, error) {
	query := `
		SELECT id, discord_channel_id, discord_source_id, slack_channel_id, slack_thread_ts, created_at
		FROM slack_discord_map
		WHERE discord_channel_id = $1 AND discord_source_id = $2`

	m := &models.ThreadMapping{}
	err := s.db.QueryRowContext(ctx, query, sourceChannelID, sourceID).Scan(
		&m.ID,
		&m.SourceChannelID,
		&m.SourceID,
		&m.DestChannelID,
		&m.DestThreadRef,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying mapping: %w", err)
	}

	return m, nil
}

func (s *PostgresStorage) SaveMapping(ctx context.Context, sourceChannelID, sourceID, destChannelID, destThreadRef string) (*models.ThreadMapping, error) {
	query := `
		INSERT INTO slack_discord_map (discord_channel_id, discord_source_id, slack_channel_id, slack_thread_ts, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (discord_channel_id, discord_source_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, sourceChannelID, sourceID, destChannelID, destThreadRef, time.Now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
			return nil, fmt.Errorf("error creating mapping: %w", err)
		}
		s.logger.Debug("Mapping insert lost a race, re-reading",
			zap.String("source_channel_id", sourceChannelID),
			zap.String("source_id", sourceID))
	}

	m, err := s.GetMapping(ctx, sourceChannelID, sourceID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("mapping %s/%s missing after insert", sourceChannelID, sourceID)
	}
	return m, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
