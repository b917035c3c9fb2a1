package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/xaenox/bridge-bot/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS slack_discord_map (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	discord_channel_id TEXT NOT NULL,
	discord_source_id TEXT NOT NULL,
	slack_channel_id TEXT NOT NULL,
	slack_thread_ts TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS slack_discord_map_source_idx
	ON slack_discord_map (discord_channel_id, discord_source_id);
`

// SQLiteStorage keeps mappings in a local database file.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStorage opens (creating if needed) the database at path.
// An empty path defaults to "data.db".
func NewSQLiteStorage(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStorage, error) {
	if path == "" {
		path = "data.db"
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// One writer at a time; the unique index still arbitrates duplicate inserts.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("SQLite storage ready", zap.String("path", path))

	return &SQLiteStorage{db: db, logger: logger}, nil
}

func (s *SQLiteStorage) GetMapping(ctx context.Context, sourceChannelID, sourceID string) (*models.ThreadMapping, error) {
	m := &models.ThreadMapping{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, discord_channel_id, discord_source_id, slack_channel_id, slack_thread_ts, created_at
		FROM slack_discord_map
		WHERE discord_channel_id = ? AND discord_source_id = ?
	`, sourceChannelID, sourceID).Scan(
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

func (s *SQLiteStorage) SaveMapping(ctx context.Context, sourceChannelID, sourceID, destChannelID, destThreadRef string) (*models.ThreadMapping, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO slack_discord_map
			(discord_channel_id, discord_source_id, slack_channel_id, slack_thread_ts, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sourceChannelID, sourceID, destChannelID, destThreadRef, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("error creating mapping: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("Mapping already exists",
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

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
