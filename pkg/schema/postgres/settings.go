package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/natserract/harmony/pkg/config"
	"go.uber.org/zap"
)

// SettingsStore keeps the connection settings as key/value rows
type SettingsStore struct {
	db     *DB
	logger *zap.Logger
}

// NewSettingsStore creates a settings store on db
func NewSettingsStore(db *DB, logger *zap.Logger) *SettingsStore {
	return &SettingsStore{db: db, logger: logger}
}

func (s *SettingsStore) Load(ctx context.Context) (config.Settings, error) {
	rows, err := s.db.Pool().Query(ctx, `SELECT key, value FROM harmony_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	settings := config.Settings{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// Save upserts the given keys in one transaction
func (s *SettingsStore) Save(ctx context.Context, settings config.Settings) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, value := range settings {
		_, err := tx.Exec(ctx, `
			INSERT INTO harmony_settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
		if err != nil {
			s.logger.Error("Failed to save setting", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debug("Saved settings", zap.Int("count", len(settings)))
	return nil
}
